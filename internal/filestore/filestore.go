package filestore

import (
	"io"
)

// FileStore keeps attachment content addressed by its sha256 hash.
type FileStore interface {
	// Save stores the content and returns its hex encoded sha256 hash and size.
	// Saving the same content twice stores it once.
	Save(r io.Reader) (hash string, size int64, err error)

	// Get retrieves the file content for the given hash.
	Get(hash string) (io.ReadCloser, error)
}
