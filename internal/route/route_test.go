package route

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/orion/guide/internal/nav"
)

func TestLoadBook(t *testing.T) {
	b, err := LoadBook("testdata/nav.json")
	require.NoError(t, err)

	assert.Equal(t, []string{"pharmacy", "radiology"}, b.Destinations())

	r, err := b.Resolve(context.Background(), "radiology")
	require.NoError(t, err)
	assert.Equal(t, "radiology", r.Destination)
	assert.Equal(t, []nav.PathStep{
		{Action: nav.ActionForward, Value: 120},
		{Action: nav.ActionTurnLeft, Value: 90},
		{Action: nav.ActionForward, Value: 45.5},
	}, r.Steps)
}

func TestParseBook_SkipsMalformedStepsKeepsUnknownActions(t *testing.T) {
	b, err := LoadBook("testdata/nav.json")
	require.NoError(t, err)

	r, err := b.Resolve(context.Background(), "pharmacy")
	require.NoError(t, err)
	assert.Equal(t, []nav.PathStep{
		{Action: nav.ActionForward, Value: 60},
		{Action: "flyUp", Value: 3},
		{Action: nav.ActionTurnRight, Value: 90},
	}, r.Steps)
}

func TestBook_UnknownDestination(t *testing.T) {
	b, err := ParseBook([]byte(`{}`))
	require.NoError(t, err)

	_, err = b.Resolve(context.Background(), "morgue")
	assert.ErrorIs(t, err, ErrUnknownDestination)
}

func TestParseBook_InvalidJSON(t *testing.T) {
	_, err := ParseBook([]byte(`[1, 2`))
	assert.Error(t, err)
}

func TestLoadBook_MissingFile(t *testing.T) {
	_, err := LoadBook("testdata/missing.json")
	assert.Error(t, err)
}

type staticResolver struct {
	route nav.Route
	err   error
	calls int
}

func (s *staticResolver) Resolve(context.Context, string) (nav.Route, error) {
	s.calls++
	return s.route, s.err
}

func TestChain_FirstHitWins(t *testing.T) {
	miss := &staticResolver{err: ErrUnknownDestination}
	hit := &staticResolver{route: nav.Route{Destination: "icu"}}
	never := &staticResolver{route: nav.Route{Destination: "other"}}

	r, err := Chain{miss, hit, never}.Resolve(context.Background(), "icu")
	require.NoError(t, err)
	assert.Equal(t, "icu", r.Destination)
	assert.Equal(t, 0, never.calls)
}

func TestChain_BackendFailureFallsThrough(t *testing.T) {
	broken := &staticResolver{err: errors.New("connection refused")}
	hit := &staticResolver{route: nav.Route{Destination: "icu"}}

	r, err := Chain{broken, hit}.Resolve(context.Background(), "icu")
	require.NoError(t, err)
	assert.Equal(t, "icu", r.Destination)
}

func TestChain_NothingFound(t *testing.T) {
	broken := &staticResolver{err: errors.New("connection refused")}
	miss := &staticResolver{err: ErrUnknownDestination}

	_, err := Chain{broken, miss}.Resolve(context.Background(), "icu")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownDestination)
	assert.Contains(t, err.Error(), "connection refused")
}
