// Package identity keeps the display names of players.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Sentinel kinds for directory failures.
var (
	ErrInvalidID   = errors.New("invalid player id")
	ErrInvalidName = errors.New("invalid display name")
)

const maxNameLen = 64

// Directory is an in-memory id to display name map.
type Directory struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{names: make(map[string]string)}
}

// Register sets the display name of id, replacing any previous one.
func (d *Directory) Register(_ context.Context, id, name string) error {
	key, err := canonical(id)
	if err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLen {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	d.mu.Lock()
	d.names[key] = name
	d.mu.Unlock()
	return nil
}

// DisplayName implements the leaderboard identity resolver.
func (d *Directory) DisplayName(_ context.Context, id string) (string, bool) {
	key, err := canonical(id)
	if err != nil {
		return "", false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.names[key]
	return n, ok
}

// Len returns the number of registered players.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.names)
}

func canonical(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return u.String(), nil
}
