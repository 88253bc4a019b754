// Package blob stores small rendered artifacts (receipt snapshots and their
// JSON sidecars) by key.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("blob not found")

type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete succeeds when the key is already absent.
	Delete(ctx context.Context, key string) error
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}
