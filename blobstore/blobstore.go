// Package blobstore keeps original uploads on the local filesystem and
// hands back a public URL for each stored object.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/ebookimport/horosafe"
)

// ErrNotFound is returned by Get for a missing object.
var ErrNotFound = errors.New("blobstore: object not found")

// Store writes objects under Root. URLs are PublicBaseURL + "/" + key.
type Store struct {
	Root          string
	PublicBaseURL string
}

// New returns a Store rooted at dir, creating it if needed.
func New(dir, publicBaseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: mkdir %s: %w", dir, err)
	}
	return &Store{Root: dir, PublicBaseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Key joins namespace and name into an object key. Every segment must be a
// valid identifier.
func Key(namespace, name string) (string, error) {
	segs := append(strings.Split(namespace, "/"), name)
	for _, s := range segs {
		if err := horosafe.ValidateIdentifier(s); err != nil {
			return "", fmt.Errorf("blobstore: key segment %q: %w", s, err)
		}
		if s == "." || s == ".." {
			return "", horosafe.ErrPathTraversal
		}
	}
	return path.Join(segs...), nil
}

// Put writes data under namespace/name atomically and returns its URL.
func (s *Store) Put(ctx context.Context, namespace, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := Key(namespace, name)
	if err != nil {
		return "", err
	}
	dst, err := horosafe.SafePath(s.Root, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("blobstore: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return "", fmt.Errorf("blobstore: temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("blobstore: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("blobstore: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("blobstore: rename: %w", err)
	}
	return s.URL(key), nil
}

// Get reads the object stored under namespace/name.
func (s *Store) Get(ctx context.Context, namespace, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := Key(namespace, name)
	if err != nil {
		return nil, err
	}
	p, err := horosafe.SafePath(s.Root, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// URL returns the public URL of key.
func (s *Store) URL(key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return s.PublicBaseURL + "/" + strings.Join(segs, "/")
}
