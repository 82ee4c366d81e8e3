package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// World is an obstacle layout, loaded from a JSON file such as
//
//	{"circles": [{"x": 80, "y": 0, "r": 10}],
//	 "boxes": [{"min_x": 150, "min_y": -20, "max_x": 170, "max_y": 20}]}
//
// Coordinates are centimeters in the frame the robot starts in, facing +x.
type World struct {
	Circles []Circle `json:"circles"`
	Boxes   []Box    `json:"boxes"`
}

// ParseWorld decodes and validates a world layout.
func ParseWorld(data []byte) (World, error) {
	var w World
	if err := json.Unmarshal(data, &w); err != nil {
		return World{}, fmt.Errorf("decode world: %w", err)
	}
	for i, c := range w.Circles {
		if c.R <= 0 {
			return World{}, fmt.Errorf("circle %d: radius must be positive", i)
		}
	}
	for i, b := range w.Boxes {
		if b.MinX >= b.MaxX || b.MinY >= b.MaxY {
			return World{}, fmt.Errorf("box %d: min corner must be below max corner", i)
		}
	}
	if len(w.Circles)+len(w.Boxes) == 0 {
		return World{}, errors.New("world has no obstacles")
	}
	return w, nil
}

// LoadWorld reads a world layout file.
func LoadWorld(path string) (World, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return World{}, err
	}
	w, err := ParseWorld(data)
	if err != nil {
		return World{}, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Obstacles returns every obstacle of the layout.
func (w World) Obstacles() []Obstacle {
	out := make([]Obstacle, 0, len(w.Circles)+len(w.Boxes))
	for _, c := range w.Circles {
		out = append(out, c)
	}
	for _, b := range w.Boxes {
		out = append(out, b)
	}
	return out
}

// SetWorld replaces the robot's obstacles with the layout.
func (r *Robot) SetWorld(w World) {
	r.ClearObstacles()
	for _, o := range w.Obstacles() {
		r.AddObstacle(o)
	}
	r.mu.Lock()
	logger := r.logger
	r.mu.Unlock()
	logger.Printf("INFO: SIM: Loaded world with %d circles and %d boxes", len(w.Circles), len(w.Boxes))
}
