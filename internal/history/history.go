// Package history persists one record per fetch in an embedded bitcask
// store, keyed by a blake3 hash of the source URL. Values are stored
// gzip-compressed.
package history

import (
	"bytes"
	"compress/gzip"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"
	"lukechampine.com/blake3"

	"go-media-fetch/internal/models"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// gzipMagicBytes are the first two bytes of a gzip file.
var gzipMagicBytes = []byte{0x1f, 0x8b}

// Store wraps the bitcask database instance and provides fetch-history
// methods.
type Store struct {
	db           *bitcask.Bitcask
	sync.RWMutex // Embed mutex for concurrent access control
}

// Open initializes and returns a Store instance.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create history directory %s: %w", dir, err)
		}
	}

	dbInstance, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database at %s: %w", path, err)
	}
	log.Infof("History database opened at %s", path)
	return &Store{db: dbInstance}, nil
}

// Close safely closes the database connection.
func (s *Store) Close() error {
	log.Info("Closing history database...")
	s.Lock()
	defer s.Unlock()
	return s.db.Close()
}

// Key derives the storage key for a source URL.
func Key(url string) []byte {
	sum := blake3.Sum256([]byte(url))
	return []byte(hex.EncodeToString(sum[:16]))
}

// Record upserts the entry for its URL, stamping the current time when
// the entry carries none.
func (s *Store) Record(entry models.HistoryEntry) error {
	if entry.URL == "" {
		return errors.New("cannot record history entry without a URL")
	}
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}

	dataBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error marshalling history entry for %s: %w", entry.URL, err)
	}

	compressed, err := compressGzip(dataBytes, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("error compressing history entry for %s: %w", entry.URL, err)
	}

	s.Lock()
	err = s.db.Put(Key(entry.URL), compressed)
	s.Unlock()
	if err != nil {
		return fmt.Errorf("error putting history entry for %s: %w", entry.URL, err)
	}
	log.WithField("status", entry.Status).Debugf("Recorded history entry for %s", entry.URL)
	return nil
}

// Get retrieves the entry recorded for url.
func (s *Store) Get(url string) (models.HistoryEntry, error) {
	s.RLock()
	value, err := s.db.Get(Key(url))
	s.RUnlock()

	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return models.HistoryEntry{}, ErrNotFound
		}
		return models.HistoryEntry{}, fmt.Errorf("error getting history entry for %s: %w", url, err)
	}

	return decodeEntry(value)
}

// Has reports whether a record exists for url.
func (s *Store) Has(url string) bool {
	s.RLock()
	defer s.RUnlock()
	return s.db.Has(Key(url))
}

// Delete removes the record for url. Deleting an absent record returns
// ErrNotFound.
func (s *Store) Delete(url string) error {
	s.Lock()
	err := s.db.Delete(Key(url))
	s.Unlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting history entry for %s: %w", url, err)
	}
	return nil
}

// Fold iterates over every recorded entry. Entries that fail to decode
// are skipped, not fatal: one corrupt record must not hide the rest.
func (s *Store) Fold(fn func(entry models.HistoryEntry) error) error {
	s.RLock()
	defer s.RUnlock()

	return s.db.Fold(func(key []byte) error {
		rawValue, err := s.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Fold: Error getting value for key %s", string(key))
			return nil
		}
		entry, err := decodeEntry(rawValue)
		if err != nil {
			log.WithError(err).Warnf("Fold: Error decoding entry for key %s", string(key))
			return nil
		}
		return fn(entry)
	})
}

func decodeEntry(value []byte) (models.HistoryEntry, error) {
	decompressed, err := decompressIfGzipped(value)
	if err != nil {
		return models.HistoryEntry{}, err
	}
	var entry models.HistoryEntry
	if err := json.Unmarshal(decompressed, &entry); err != nil {
		return models.HistoryEntry{}, fmt.Errorf("error unmarshalling history entry: %w", err)
	}
	return entry, nil
}

// --- Compression Helpers ---

// decompressIfGzipped decompresses the value if it is gzipped.
func decompressIfGzipped(value []byte) ([]byte, error) {
	if bytes.HasPrefix(value, gzipMagicBytes) {
		bReader := bytes.NewReader(value)
		gReader, err := gzip.NewReader(bReader)
		if err != nil {
			log.WithError(err).Warn("Error creating gzip reader for value, returning raw data.")
			return value, nil
		}
		defer gReader.Close()

		decompressedValue, err := io.ReadAll(gReader)
		if err != nil {
			log.WithError(err).Warn("Error decompressing value, returning raw data.")
			return value, nil
		}
		return decompressedValue, nil
	}

	return value, nil
}

// compressGzip compresses the value using gzip with the specified compression level.
func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer for value: %w", err)
	}
	_, err = gWriter.Write(value)
	if err != nil {
		_ = gWriter.Close()
		return nil, fmt.Errorf("error writing compressed data for value: %w", err)
	}
	err = gWriter.Close() // Close *must* be called to flush buffers
	if err != nil {
		return nil, fmt.Errorf("error closing gzip writer for value: %w", err)
	}

	return buf.Bytes(), nil
}
