// Package sequence persists named, reusable prompt lists. A sequence is the
// unit users save and replay; the queue processor only ever receives the
// extracted prompts.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound reports a sequence ID with no stored record behind it.
var ErrNotFound = errors.New("sequence not found")

// Sequence is a named, ordered prompt list. Timestamps serialize as RFC 3339.
type Sequence struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Prompts     []string  `json:"prompts"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the fields no store will persist without.
func (s Sequence) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("sequence name must not be empty")
	}
	if len(s.Prompts) == 0 {
		return errors.New("sequence must contain at least one prompt")
	}
	for i, p := range s.Prompts {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("prompt %d is empty", i+1)
		}
	}
	return nil
}

// Store is the persistence contract shared by the file and Postgres
// implementations. List returns sequences ordered by name; Save assigns an
// ID on first save and bumps UpdatedAt on every save.
type Store interface {
	List(ctx context.Context) ([]Sequence, error)
	Get(ctx context.Context, id string) (Sequence, error)
	Save(ctx context.Context, seq Sequence) (Sequence, error)
	Delete(ctx context.Context, id string) error
}
