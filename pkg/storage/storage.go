// Package storage persists redacted results.
package storage

import (
	"context"
	"fmt"
)

// Store saves an encoded result under name and returns where it can be found
type Store interface {
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Options selects and configures a store
type Options struct {
	Backend string // none, fs, s3
	Dir     string
	Bucket  string
	Region  string
	Prefix  string
}

// New creates the store named by opts.Backend. The none backend returns a
// nil Store, meaning results are not persisted.
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case "", "none":
		return nil, nil
	case "fs":
		return NewFS(opts.Dir)
	case "s3":
		return NewS3(opts)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
