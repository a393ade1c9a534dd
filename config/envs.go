package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the application's configuration values.
type Config struct {
	HostIP   string `env:"HOST_IP" envDefault:"0.0.0.0"` // Host IP for the control API
	RESTPort int    `env:"REST_PORT" envDefault:"8080"`  // Port for the control API
	GinMode  string `env:"GIN_MODE" envDefault:"release"` // Mode for the Gin framework (e.g., release, debug, test)
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret string `env:"JWT_SECRET"`                               // Secret key for JWT signing
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"vinom-mazesync"` // Issuer claim for JWTs

	ParticipantID string `env:"PARTICIPANT_ID"` // Stable id of this node; random when empty

	Session Session
	Seed    Seed
	World   World
	Archive Archive
}

// Session selects and configures the room backend.
type Session struct {
	Backend        string        `env:"SESSION_BACKEND" envDefault:"redis"` // "redis" or "memory"
	RoomID         string        `env:"ROOM_ID" envDefault:"lobby"`
	RoomCapacity   int           `env:"ROOM_CAPACITY" envDefault:"4"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisPrefix    string        `env:"REDIS_PREFIX" envDefault:"mazesync"`
	AuthorityLease time.Duration `env:"AUTHORITY_LEASE" envDefault:"3s"`
}

// Seed configures the seed agreement handshake.
type Seed struct {
	UseFixedSeed         bool          `env:"USE_FIXED_SEED" envDefault:"false"`
	FixedSeed            int32         `env:"FIXED_SEED" envDefault:"12345"`
	ExpectedParticipants int           `env:"EXPECTED_PARTICIPANTS" envDefault:"0"` // 0 derives the count from the room capacity
	WaitForAllReady      bool          `env:"WAIT_FOR_ALL_READY" envDefault:"true"`
	PollInterval         time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`
}

// World configures maze size and item placement.
type World struct {
	GridWidth                   int     `env:"GRID_WIDTH" envDefault:"10"`
	GridDepth                   int     `env:"GRID_DEPTH" envDefault:"10"`
	CellSize                    float64 `env:"CELL_SIZE" envDefault:"1"`
	CollectibleSpawnProbability float64 `env:"COLLECTIBLE_SPAWN_PROBABILITY" envDefault:"0.02"`
	MaxCollectibles             int     `env:"MAX_COLLECTIBLES" envDefault:"3"`
	MinCollectibleDistance      float64 `env:"MIN_COLLECTIBLE_DISTANCE" envDefault:"5"`
	MidpointCollectible         bool    `env:"MIDPOINT_COLLECTIBLE" envDefault:"false"`
	PlaceYOffset                float64 `env:"PLACE_Y_OFFSET" envDefault:"0.5"`
	ConsumableKey               string  `env:"CONSUMABLE_KEY" envDefault:"HasTicket"`
}

// Archive configures the optional layout archive.
type Archive struct {
	MongoURI string `env:"MONGO_URI"` // Archive is disabled when empty
	DBName   string `env:"DB_NAME" envDefault:"mazesync"`
}

// Envs holds the application's configuration loaded from environment variables.
var Envs = initConfig()

// initConfig initializes and returns the application configuration.
// It loads environment variables from a .env file.
func initConfig() Config {
	// Load .env file if available
	if err := godotenv.Load(); err != nil {
		log.Printf("[APP] [INFO] .env file not found or could not be loaded: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("[APP] [FATAL] %v", err)
	}
	return cfg
}

// Load parses the current environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
