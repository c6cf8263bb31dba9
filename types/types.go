package types

type (
	// Term represents the leader term of a log entry.
	Term uint64

	// Index represents the index of a log entry.
	Index uint64
)

// Config is the config of raftsnap.
type Config struct {
	// Dir is the directory where snapshot of the replicated entity is kept.
	Dir string

	// IOWorkers is the number of goroutines executing filesystem operations.
	IOWorkers int

	// IOClass is the name of scheduling class used for snapshot I/O.
	IOClass string

	// IOShares is the weight of the scheduling class.
	IOShares uint32
}

// DefaultConfig returns default config for the directory.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:       dir,
		IOWorkers: 2,
		IOClass:   "snapshot",
		IOShares:  1,
	}
}
