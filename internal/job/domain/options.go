package domain

import "time"

const (
	BackoffExponential = "exponential"
	BackoffFixed       = "fixed"
)

type Options struct {
	Attempts         int       `json:"attempts"`
	Backoff          Backoff   `json:"backoff"`
	RemoveOnComplete Retention `json:"removeOnComplete"`
	RemoveOnFail     Retention `json:"removeOnFail"`
}

// Backoff spaces retries. It has no effect while Attempts is 1.
type Backoff struct {
	Type  string        `json:"type"`
	Delay time.Duration `json:"delay"`
}

// Retention bounds how long terminal jobs are kept. Zero values disable the
// corresponding bound.
type Retention struct {
	Age   time.Duration `json:"age"`
	Count int           `json:"count,omitempty"`
}

func DefaultOptions() Options {
	return Options{
		Attempts: 1,
		Backoff:  Backoff{Type: BackoffExponential, Delay: time.Second},
		RemoveOnComplete: Retention{
			Age:   time.Hour,
			Count: 1000,
		},
		RemoveOnFail: Retention{Age: 24 * time.Hour},
	}
}

// WithDefaults fills unset fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.Attempts <= 0 {
		o.Attempts = def.Attempts
	}
	if o.Backoff.Type == "" {
		o.Backoff = def.Backoff
	}
	if o.RemoveOnComplete.Age <= 0 && o.RemoveOnComplete.Count <= 0 {
		o.RemoveOnComplete = def.RemoveOnComplete
	}
	if o.RemoveOnFail.Age <= 0 {
		o.RemoveOnFail = def.RemoveOnFail
	}
	return o
}
