package drift

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dyso-testbed/dyso/core/nnduration"
)

// DefaultWriteTimeout is the default timeout of each register write.
const DefaultWriteTimeout = 5 * time.Second

// Config contains drift schedule parameters.
type Config struct {
	// IntervalSize is the time between offset updates.
	IntervalSize nnduration.Seconds `json:"intervalSize"`
	// OffsetSize is the offset increment per update.
	OffsetSize uint64 `json:"offsetSize"`
	// TotalDuration is the overall length of the schedule.
	TotalDuration nnduration.Seconds `json:"totalDuration"`
	// WriteTimeout bounds each register write.
	WriteTimeout nnduration.Milliseconds `json:"writeTimeout,omitempty"`
}

// DefaultConfig returns the schedule of the DySO experiment: +1000 every 5 seconds for 100 seconds.
func DefaultConfig() Config {
	return Config{
		IntervalSize:  5,
		OffsetSize:    1000,
		TotalDuration: 100,
	}
}

// Validate checks the schedule.
func (cfg Config) Validate() error {
	if cfg.IntervalSize == 0 {
		return errors.New("intervalSize must be positive")
	}
	if ticks := uint64(cfg.Ticks()); cfg.OffsetSize > 0 && ticks > math.MaxUint64/cfg.OffsetSize {
		return fmt.Errorf("final offset overflows after %d ticks", ticks)
	}
	return nil
}

// Ticks returns the number of offset updates, floor(TotalDuration / IntervalSize).
func (cfg Config) Ticks() int {
	if cfg.IntervalSize == 0 {
		return 0
	}
	return int(cfg.TotalDuration / cfg.IntervalSize)
}

// Duration returns the time spent by a complete schedule.
func (cfg Config) Duration() time.Duration {
	return time.Duration(cfg.Ticks()) * cfg.IntervalSize.Duration()
}

// FinalOffset returns the offset written on the last tick.
func (cfg Config) FinalOffset() uint64 {
	return uint64(cfg.Ticks()) * cfg.OffsetSize
}

func (cfg Config) writeTimeout() time.Duration {
	return cfg.WriteTimeout.DurationOr(nnduration.Milliseconds(DefaultWriteTimeout / time.Millisecond))
}
