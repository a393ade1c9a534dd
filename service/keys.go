package service

// Shared property keys.
const (
	KeyMazeSeed       = "mazeSeed"       // room: agreed seed, written once by the authority
	KeyReady          = "ready"          // player: self-asserted readiness
	KeySpawned        = "spawned"        // player: self-asserted once the local world is built
	KeyColorIndex     = "colorIndex"     // player: authority-assigned palette index
	KeyGameFinishedBy = "gameFinishedBy" // room: first participant to finish
)

// Request kinds handled by the arbiter.
const (
	KindPickup = "pickup"
	KindColor  = "color"
	KindFinish = "finish"
)

// Shared object kinds.
const (
	ObjectGoal        = "goal"
	ObjectCollectible = "collectible"
)
