package storage

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
)

// gzipMagicBytes are the first two bytes of a gzip stream.
var gzipMagicBytes = []byte{0x1f, 0x8b}

// compressThreshold is the value size above which values are gzipped before storing.
const compressThreshold = 512

// DiskBackend persists values in a bitcask database. It plays the role of local storage.
type DiskBackend struct {
	db *bitcask.Bitcask
	mu sync.RWMutex
}

// OpenDisk opens (or creates) the bitcask database at path.
func OpenDisk(path string) (*DiskBackend, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}

	db, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask storage at %s: %w", path, err)
	}
	log.Debugf("Storage opened at %s", path)
	return &DiskBackend{db: db}, nil
}

func (d *DiskBackend) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}

// Get retrieves the value for key, decompressing it when it was stored gzipped.
func (d *DiskBackend) Get(key string) ([]byte, error) {
	d.mu.RLock()
	value, err := d.db.Get([]byte(key))
	d.mu.RUnlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error getting key %s: %w", key, err)
	}
	return decompressIfGzipped(value)
}

// Put stores value under key. Large values are gzipped.
func (d *DiskBackend) Put(key string, value []byte) error {
	stored := value
	if len(value) > compressThreshold {
		compressed, err := compressGzip(value, gzip.BestCompression)
		if err != nil {
			return fmt.Errorf("error compressing value for key %s: %w", key, err)
		}
		stored = compressed
	}

	d.mu.Lock()
	err := d.db.Put([]byte(key), stored)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("error putting key %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (d *DiskBackend) Delete(key string) error {
	d.mu.Lock()
	err := d.db.Delete([]byte(key))
	d.mu.Unlock()
	if err != nil && !errors.Is(err, bitcask.ErrKeyNotFound) {
		return fmt.Errorf("error deleting key %s: %w", key, err)
	}
	return nil
}

// Keys lists every stored key in sorted order.
func (d *DiskBackend) Keys() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var keys []string
	err := d.db.Fold(func(key []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func decompressIfGzipped(value []byte) ([]byte, error) {
	if !bytes.HasPrefix(value, gzipMagicBytes) {
		return value, nil
	}
	gReader, err := gzip.NewReader(bytes.NewReader(value))
	if err != nil {
		log.WithError(err).Warn("Error creating gzip reader for value, returning raw data.")
		return value, nil
	}
	defer gReader.Close()

	decompressed, err := io.ReadAll(gReader)
	if err != nil {
		log.WithError(err).Warn("Error decompressing value, returning raw data.")
		return value, nil
	}
	return decompressed, nil
}

func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer: %w", err)
	}
	if _, err := gWriter.Write(value); err != nil {
		_ = gWriter.Close()
		return nil, fmt.Errorf("error writing compressed data: %w", err)
	}
	if err := gWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}
