package maze

const (
	splitMixGamma = 0x9e3779b97f4a7c15
	splitMixMul1  = 0xbf58476d1ce4e5b9
	splitMixMul2  = 0x94d049bb133111eb
)

// Rng is the seeded pseudo-random source shared by the builder and the
// placement policy. It implements SplitMix64 so that every participant,
// whatever its platform or toolchain, draws the same sequence for a seed.
type Rng struct {
	seed  int32
	state uint64
}

// NewRng returns a generator positioned at the start of the sequence for seed.
func NewRng(seed int32) *Rng {
	return &Rng{seed: seed, state: uint64(int64(seed))}
}

// Seed returns the seed the generator was created with.
func (r *Rng) Seed() int32 {
	return r.seed
}

// Uint64 returns the next 64 bits of the sequence.
func (r *Rng) Uint64() uint64 {
	r.state += splitMixGamma
	z := r.state
	z = (z ^ (z >> 30)) * splitMixMul1
	z = (z ^ (z >> 27)) * splitMixMul2
	return z ^ (z >> 31)
}

// Intn returns a value in [0, n). It returns 0 when n <= 0.
func (r *Rng) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.Uint64() % uint64(n))
}

// Range returns a value in [lo, hi). It returns lo when the range is empty.
func (r *Rng) Range(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.Intn(hi-lo)
}

// Float64 returns a value in [0, 1).
func (r *Rng) Float64() float64 {
	return float64(r.Uint64()>>11) / (1 << 53)
}

// Shuffle permutes n elements in place with a forward Fisher-Yates pass,
// calling swap for each position. One value is drawn per element.
func (r *Rng) Shuffle(n int, swap func(i, j int)) {
	for i := 0; i < n; i++ {
		swap(i, r.Range(i, n))
	}
}
