package scratch

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Cache keeps copies of downloads for the lifetime of one run, keyed by URL.
// Entries are named by the SHA-256 of the URL. Reset empties the cache.
type Cache struct {
	// root is the folder holding cached copies.
	root string
	// mu guards entries.
	mu sync.Mutex
	// entries maps a URL to its cached copy.
	entries map[string]string
}

// NewCache returns an empty cache stored under root.
func NewCache(root string) *Cache {
	return &Cache{
		root:    filepath.Clean(root),
		entries: make(map[string]string),
	}
}

// Lookup copies the cached body of url to dest and reports whether it was cached.
func (c *Cache) Lookup(url, dest string) (bool, error) {
	c.mu.Lock()
	cached, ok := c.entries[url]
	c.mu.Unlock()

	if !ok {
		return false, nil
	}

	if err := copyFile(cached, dest); err != nil {
		return false, fmt.Errorf("copy cached download: %w", err)
	}

	return true, nil
}

// Store keeps a copy of src as the body of url.
func (c *Cache) Store(url, src string) error {
	if err := os.MkdirAll(c.root, dirPermissions); err != nil {
		return fmt.Errorf("create cache folder: %w", err)
	}

	sum := sha256.Sum256([]byte(url))
	path := filepath.Join(c.root, hex.EncodeToString(sum[:]))

	if err := copyFile(src, path); err != nil {
		return fmt.Errorf("store download in cache: %w", err)
	}

	c.mu.Lock()
	c.entries[url] = path
	c.mu.Unlock()

	return nil
}

// Len returns the number of cached downloads.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}

// Reset deletes every cached copy.
func (c *Cache) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	for url, path := range c.entries {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}

		delete(c.entries, url)
	}

	return errors.Join(errs...)
}

// copyFile copies src to dst, replacing dst.
func copyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}

	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(filepath.Clean(dst))
	if err != nil {
		return err
	}

	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}
