package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall-clock time so window anchors can be pinned in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

func New() Clock {
	return SystemClock{}
}

var Module = fx.Module("clock", fx.Provide(New))
