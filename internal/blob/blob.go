// Package blob stores brief attachments. Keys are scoped per search:
// searches/<search_id>/<file_name>.
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrExists is returned by Put when the key is already taken. Objects are
	// never overwritten.
	ErrExists = errors.New("blob: object already exists")
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("blob: object not found")
	// ErrInvalidKey is returned for keys that are empty or escape the store.
	ErrInvalidKey = errors.New("blob: invalid key")
)

// Store is an attachment store.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Ping(ctx context.Context) error
}

// Key builds the storage key for an attachment. Only the base name of
// fileName is kept.
func Key(searchID uuid.UUID, fileName string) string {
	name := path.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		name = "attachment"
	}
	return "searches/" + searchID.String() + "/" + name
}

// cleanKey normalises key and rejects anything that would leave the store root.
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
