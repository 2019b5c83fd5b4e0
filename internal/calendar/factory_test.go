package calendar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	Provider
	t Type
}

func (s stubProvider) Type() Type { return s.t }

func stubBuilder(t Type) Builder {
	return func(_ context.Context, _ BuildConfig) (Provider, error) {
		return stubProvider{t: t}, nil
	}
}

func TestParseType(t *testing.T) {
	t.Run("Known Providers", func(t *testing.T) {
		for _, name := range []string{"google", "microsoft"} {
			got, err := ParseType(name)
			require.NoError(t, err)
			assert.Equal(t, Type(name), got)
		}
	})

	t.Run("Unknown Provider Rejected", func(t *testing.T) {
		_, err := ParseType("caldav")
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
	})
}

func TestFactory(t *testing.T) {
	ctx := context.Background()

	t.Run("Builds Registered Provider", func(t *testing.T) {
		f := NewFactory()
		require.NoError(t, f.Register(TypeGoogle, stubBuilder(TypeGoogle)))

		p, err := f.New(ctx, TypeGoogle, BuildConfig{})
		require.NoError(t, err)
		assert.Equal(t, TypeGoogle, p.Type())
		assert.True(t, f.Supported(TypeGoogle))
		assert.False(t, f.Supported(TypeMicrosoft))
	})

	t.Run("Unregistered Type Unsupported", func(t *testing.T) {
		f := NewFactory()
		_, err := f.New(ctx, TypeMicrosoft, BuildConfig{})
		assert.ErrorIs(t, err, ErrUnsupportedProvider)
	})

	t.Run("Nil Builder Rejected", func(t *testing.T) {
		f := NewFactory()
		assert.Error(t, f.Register(TypeGoogle, nil))
	})

	t.Run("Unknown Type Rejected", func(t *testing.T) {
		f := NewFactory()
		assert.Error(t, f.Register(Type("caldav"), stubBuilder("caldav")))
	})
}
