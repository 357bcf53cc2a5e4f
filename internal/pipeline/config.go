package pipeline

import (
	"time"

	"github.com/Hamiltonwise/signalsai-sub006/internal/logging"
)

// Options configures a Controller.
type Options struct {
	// PollInterval is the wait between status fetches. Defaults to 3s.
	PollInterval time.Duration
	Logger       logging.Logger
}

const DefaultPollInterval = 3 * time.Second

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	o.Logger = logging.OrNop(o.Logger)
	return o
}
