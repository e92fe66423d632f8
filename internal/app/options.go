package app

import (
	"time"

	"github.com/google/uuid"
)

type options struct {
	now    func() time.Time
	newRef func() string
}

// Option tweaks service construction; tests use it to pin the clock.
type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func WithReferences(newRef func() string) Option {
	return func(o *options) { o.newRef = newRef }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, newRef: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
