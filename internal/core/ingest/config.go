package ingest

import "time"

// Config tunes the ingestion pipeline.
//
// MaxLen/Overlap are in characters and are the single knob trading token
// budget against context preservation. BatchSize bounds one embedding round;
// InsertSliceSize bounds one database insert so a batch never exceeds
// payload limits. EmbedTimeout caps each individual embedding call so one
// slow chunk cannot stall its batch.
type Config struct {
	MaxLen          int
	Overlap         int
	BatchSize       int
	InsertSliceSize int
	EmbedTimeout    time.Duration
	Workers         int
}

func (c Config) withDefaults() Config {
	if c.MaxLen <= 0 {
		c.MaxLen = 8000
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.InsertSliceSize <= 0 {
		c.InsertSliceSize = 50
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = 30 * time.Second
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	return c
}
