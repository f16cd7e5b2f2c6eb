package rediskey

// Settlement keys (shared between the engine and the sweeper binary)
const (
	SweepLockKey = "settlement:sweep:lock"
)
