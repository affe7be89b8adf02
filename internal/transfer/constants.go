package transfer

const (
	// DefaultChunkSize is the size of every binary frame but the last.
	DefaultChunkSize = 16 * 1024
	// DefaultHighWaterMark is the buffered amount above which SendFile
	// waits for the channel to drain.
	DefaultHighWaterMark = 64 * 1024
)

// Config tunes the send path.
type Config struct {
	ChunkSize     int
	HighWaterMark uint64
}

// DefaultConfig returns the values used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ChunkSize:     DefaultChunkSize,
		HighWaterMark: DefaultHighWaterMark,
	}
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.HighWaterMark == 0 {
		c.HighWaterMark = DefaultHighWaterMark
	}
	return c
}

// lowWaterMark is the buffered amount at which a suspended send resumes.
func (c Config) lowWaterMark() uint64 {
	return uint64(c.ChunkSize)
}
