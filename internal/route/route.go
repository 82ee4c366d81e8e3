// Package route resolves hospital destinations to scripted navigation routes.
package route

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/yourusername/orion/guide/internal/nav"
)

// ErrUnknownDestination is returned when no route exists for a destination.
var ErrUnknownDestination = errors.New("unknown destination")

// Resolver looks up the route for a destination.
type Resolver interface {
	Resolve(ctx context.Context, destination string) (nav.Route, error)
}

// entry is the stored form of one destination: {"path": [{"action": ..., "value": ...}]}.
type entry struct {
	Path json.RawMessage `json:"path"`
}

// Book is an in-memory route book, usually loaded from nav.json.
type Book struct {
	routes map[string]nav.Route
}

// LoadBook reads a route book file.
func LoadBook(path string) (*Book, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route book: %w", err)
	}
	return ParseBook(data)
}

// ParseBook parses a route book. Destinations without a path array and
// steps without a string action and numeric value are skipped with a
// warning. Unknown action names are kept; the navigator skips them at run time.
func ParseBook(data []byte) (*Book, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse route book: %w", err)
	}

	b := &Book{routes: make(map[string]nav.Route, len(raw))}
	for dest, msg := range raw {
		r, err := decodeRoute(dest, msg)
		if err != nil {
			log.Printf("WARN: Skipping destination %q: %v", dest, err)
			continue
		}
		b.routes[dest] = r
	}
	return b, nil
}

// Resolve implements Resolver.
func (b *Book) Resolve(_ context.Context, destination string) (nav.Route, error) {
	r, ok := b.routes[destination]
	if !ok {
		return nav.Route{}, fmt.Errorf("%w: %q", ErrUnknownDestination, destination)
	}
	return r, nil
}

// Destinations returns the known destinations, sorted.
func (b *Book) Destinations() []string {
	out := make([]string, 0, len(b.routes))
	for d := range b.routes {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Routes returns every route in the book, sorted by destination.
func (b *Book) Routes() []nav.Route {
	out := make([]nav.Route, 0, len(b.routes))
	for _, d := range b.Destinations() {
		out = append(out, b.routes[d])
	}
	return out
}

func decodeRoute(dest string, msg json.RawMessage) (nav.Route, error) {
	var e entry
	if err := json.Unmarshal(msg, &e); err != nil {
		return nav.Route{}, fmt.Errorf("invalid navigation data: %w", err)
	}

	var steps []json.RawMessage
	if len(e.Path) == 0 || json.Unmarshal(e.Path, &steps) != nil {
		return nav.Route{}, errors.New(`invalid or missing navigation data ("path")`)
	}

	r := nav.Route{Destination: dest, Steps: make([]nav.PathStep, 0, len(steps))}
	for i, s := range steps {
		step, err := decodeStep(s)
		if err != nil {
			log.Printf("WARN: Malformed navigation step %d for %q: %v", i+1, dest, err)
			continue
		}
		r.Steps = append(r.Steps, step)
	}
	return r, nil
}

func decodeStep(msg json.RawMessage) (nav.PathStep, error) {
	var fields struct {
		Action *string  `json:"action"`
		Value  *float64 `json:"value"`
	}
	if err := json.Unmarshal(msg, &fields); err != nil {
		return nav.PathStep{}, err
	}
	if fields.Action == nil || fields.Value == nil {
		return nav.PathStep{}, errors.New("missing 'action' or 'value'")
	}
	return nav.PathStep{Action: nav.Action(*fields.Action), Value: *fields.Value}, nil
}

func encodeRoute(r nav.Route) ([]byte, error) {
	path := r.Steps
	if path == nil {
		path = []nav.PathStep{}
	}
	return json.Marshal(struct {
		Path []nav.PathStep `json:"path"`
	}{path})
}

// Chain tries each resolver in order; the first route found wins.
type Chain []Resolver

// Resolve implements Resolver. Lookup failures other than an unknown
// destination are logged and the next resolver is tried.
func (c Chain) Resolve(ctx context.Context, destination string) (nav.Route, error) {
	var errs []error
	for _, r := range c {
		route, err := r.Resolve(ctx, destination)
		if err == nil {
			return route, nil
		}
		if !errors.Is(err, ErrUnknownDestination) {
			log.Printf("WARN: Route lookup for %q failed: %v", destination, err)
			errs = append(errs, err)
		}
	}
	return nav.Route{}, errors.Join(append([]error{fmt.Errorf("%w: %q", ErrUnknownDestination, destination)}, errs...)...)
}
