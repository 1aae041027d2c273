// Package content holds the content index that maps public URLs to stored
// records.
package content

import (
	"context"
	"errors"
	"time"
)

// TypeFile is the only record type that carries image bytes.
const TypeFile = "file"

var ErrInvalidRecord = errors.New("invalid content record")

type Record struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	Type      string         `json:"type"`
	Source    map[string]any `json:"source,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (r Record) IsFile() bool {
	return r.Type == TypeFile
}

func (r Record) Validate() error {
	switch {
	case r.ID == "":
		return errors.Join(ErrInvalidRecord, errors.New("id is required"))
	case r.URL == "":
		return errors.Join(ErrInvalidRecord, errors.New("url is required"))
	case r.Type == "":
		return errors.Join(ErrInvalidRecord, errors.New("type is required"))
	}
	return nil
}

type Index interface {
	// Lookup returns the record indexed under url. The bool is false when
	// nothing matches.
	Lookup(ctx context.Context, url string) (Record, bool, error)
	Put(ctx context.Context, record Record) error
}
