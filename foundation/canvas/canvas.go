// Package canvas maintains the in-memory pixel grid that is the source of
// truth for everything broadcast to viewers.
package canvas

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutOfBounds is returned when a coordinate falls outside the
// configured grid.
var ErrOutOfBounds = errors.New("coordinates out of bounds")

// Canvas manages the mapping of grid coordinates to color values.
type Canvas struct {
	width  int
	height int
	mu     sync.RWMutex
	pixels map[string]string
}

// New constructs a canvas for the specified dimensions.
func New(width int, height int) *Canvas {
	return &Canvas{
		width:  width,
		height: height,
		pixels: make(map[string]string),
	}
}

// Width returns the configured grid width.
func (c *Canvas) Width() int {
	return c.width
}

// Height returns the configured grid height.
func (c *Canvas) Height() int {
	return c.height
}

// InBounds reports whether the specified coordinate falls inside the grid.
func (c *Canvas) InBounds(x int, y int) bool {
	return x >= 0 && x < c.width && y >= 0 && y < c.height
}

// Set applies the specified color to the specified coordinate. Coordinates
// outside the grid are rejected and leave the canvas unchanged.
func (c *Canvas) Set(x int, y int, color string) error {
	if !c.InBounds(x, y) {
		return fmt.Errorf("set (%d,%d): %w", x, y, ErrOutOfBounds)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pixels[Key(x, y)] = color
	return nil
}

// Copy returns a point-in-time copy of the full pixel mapping.
func (c *Canvas) Copy() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pixels := make(map[string]string, len(c.pixels))
	for k, v := range c.pixels {
		pixels[k] = v
	}

	return pixels
}

// Len returns the number of painted pixels.
func (c *Canvas) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.pixels)
}

// Clear removes every painted pixel in one atomic operation.
func (c *Canvas) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pixels = make(map[string]string)
}

// Key produces the coordinate key used on the wire and in the mapping.
func Key(x int, y int) string {
	return fmt.Sprintf("%d,%d", x, y)
}
