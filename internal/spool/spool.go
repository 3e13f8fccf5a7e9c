package spool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// Spool keeps uploaded documents as temporary objects for the life of their session.
type Spool struct {
	fs      afs.Service
	baseURL string
}

// DefaultURL is the spool location under the system temp directory.
func DefaultURL() string {
	return filepath.Join(os.TempDir(), "resumerag")
}

func New(baseURL string) *Spool {
	if baseURL == "" {
		baseURL = DefaultURL()
	}
	return &Spool{fs: afs.New(), baseURL: baseURL}
}

// URL returns the location of the document spooled for key.
func (s *Spool) URL(key string) string {
	return url.Join(s.baseURL, key+".pdf")
}

// Put writes data under key and returns its URL.
func (s *Spool) Put(ctx context.Context, key string, data []byte) (string, error) {
	URL := s.URL(key)
	if err := s.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("spool %s: %w", key, err)
	}
	return URL, nil
}

// Remove deletes the spooled document for key. Removing a missing document is not an error.
func (s *Spool) Remove(ctx context.Context, key string) error {
	URL := s.URL(key)
	exists, err := s.fs.Exists(ctx, URL)
	if err != nil || !exists {
		return err
	}
	if err := s.fs.Delete(ctx, URL); err != nil {
		return fmt.Errorf("remove spooled %s: %w", key, err)
	}
	return nil
}

// Exists reports whether a document is spooled for key.
func (s *Spool) Exists(ctx context.Context, key string) (bool, error) {
	return s.fs.Exists(ctx, s.URL(key))
}
