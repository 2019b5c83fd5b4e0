package calendar

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/gravityfall/calendar-booking-backend/internal/pkg/logging"
)

// BuildConfig carries the per-connection inputs a provider needs.
type BuildConfig struct {
	TokenSource oauth2.TokenSource
	CalendarID  string
	Timeout     time.Duration
	Logger      *logging.Logger
}

// Builder constructs a Provider for one connection.
type Builder func(ctx context.Context, cfg BuildConfig) (Provider, error)

// Factory selects provider implementations by explicit type. Builders are
// registered at composition time; no runtime type inspection is involved.
type Factory struct {
	builders map[Type]Builder
}

// NewFactory returns an empty factory.
func NewFactory() *Factory {
	return &Factory{builders: make(map[Type]Builder)}
}

// Register adds a builder for a provider type. Registering a nil builder or
// an unknown type is rejected.
func (f *Factory) Register(t Type, b Builder) error {
	if _, err := ParseType(string(t)); err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("calendar: nil builder for provider %s", t)
	}
	f.builders[t] = b
	return nil
}

// New builds a Provider for the given type, or ErrUnsupportedProvider when no
// builder is registered for it.
func (f *Factory) New(ctx context.Context, t Type, cfg BuildConfig) (Provider, error) {
	b, ok := f.builders[t]
	if !ok {
		return nil, ErrUnsupportedProvider
	}
	return b(ctx, cfg)
}

// Supported reports whether a builder is registered for the type.
func (f *Factory) Supported(t Type) bool {
	_, ok := f.builders[t]
	return ok
}
