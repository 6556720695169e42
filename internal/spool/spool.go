// Package spool keeps encoded payloads that could not be delivered in a bolt
// database until they can be replayed.
package spool

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const checksumLen = 8

var bucketPayloads = []byte("payloads")

// ErrCorrupt is returned by Decode for a record whose checksum does not match.
var ErrCorrupt = errors.New("spool record is corrupt")

// Spool is a FIFO of payloads stored on disk. Records are keyed by a
// monotonically increasing sequence and carry an xxhash checksum of the
// payload.
//
// A Spool is safe for concurrent use.
type Spool struct {
	db         *bolt.DB
	maxRecords int
	logger     *zap.Logger

	// mu serializes writers so count matches the bucket.
	mu sync.Mutex

	count   *atomic.Int64
	evicted *atomic.Int64
}

// Open opens or creates the spool at path. maxRecords bounds the number of
// stored payloads; when full, the oldest payload is evicted. Zero means no
// bound.
func Open(path string, maxRecords int, logger *zap.Logger) (*Spool, error) {
	if maxRecords < 0 {
		return nil, fmt.Errorf("max records must not be negative, got %d", maxRecords)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open spool database: %w", err)
	}

	var n int
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketPayloads)
		if err != nil {
			return err
		}
		return b.ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize spool: %w", err)
	}

	logger.Debug("Opened spool", zap.String("path", path), zap.Int("records", n))
	return &Spool{
		db:         db,
		maxRecords: maxRecords,
		logger:     logger,
		count:      atomic.NewInt64(int64(n)),
		evicted:    atomic.NewInt64(0),
	}, nil
}

// Append stores a copy of payload at the tail of the spool.
func (s *Spool) Append(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	over := 0
	if s.maxRecords > 0 {
		over = int(s.count.Load()) + 1 - s.maxRecords
	}

	evicted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPayloads)
		c := b.Cursor()
		for evicted < over {
			if k, _ := c.First(); k == nil {
				break
			}
			if err := c.Delete(); err != nil {
				return err
			}
			evicted++
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), Encode(payload))
	})
	if err != nil {
		return fmt.Errorf("failed to append to spool: %w", err)
	}

	s.count.Add(int64(1 - evicted))
	if evicted > 0 {
		s.evicted.Add(int64(evicted))
		s.logger.Warn("Spool full, evicted oldest payloads",
			zap.Int("evicted", evicted),
			zap.Int("max_records", s.maxRecords))
	}
	return nil
}

// ReplayFunc delivers one payload. Returning an error stops the replay and
// keeps the payload.
type ReplayFunc func(ctx context.Context, payload []byte) error

// Replay hands payloads to fn oldest first, deleting each one fn accepts. It
// stops at the first error from fn or when ctx is done, and returns how many
// payloads were delivered. Corrupt records are deleted and skipped.
func (s *Spool) Replay(ctx context.Context, fn ReplayFunc) (int, error) {
	delivered := 0
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}

		key, record, err := s.head()
		if err != nil {
			return delivered, err
		}
		if key == nil {
			return delivered, nil
		}

		payload, err := Decode(record)
		if err != nil {
			s.logger.Warn("Dropping corrupt spool record", zap.Uint64("seq", binary.BigEndian.Uint64(key)))
			if err := s.delete(key); err != nil {
				return delivered, err
			}
			continue
		}

		if err := fn(ctx, payload); err != nil {
			return delivered, err
		}
		if err := s.delete(key); err != nil {
			return delivered, err
		}
		delivered++
	}
}

// head returns a copy of the oldest record, or a nil key when empty.
func (s *Spool) head() (key, record []byte, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(bucketPayloads).Cursor().First()
		if k == nil {
			return nil
		}
		key = append([]byte(nil), k...)
		record = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read spool: %w", err)
	}
	return key, record, nil
}

func (s *Spool) delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPayloads)
		// The record may already have been evicted by Append.
		if b.Get(key) == nil {
			return nil
		}
		deleted = true
		return b.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("failed to delete spool record: %w", err)
	}
	if deleted {
		s.count.Dec()
	}
	return nil
}

// Len returns the number of stored payloads.
func (s *Spool) Len() int { return int(s.count.Load()) }

// Evicted returns how many payloads were evicted because the spool was full.
func (s *Spool) Evicted() int64 { return s.evicted.Load() }

// Close closes the database.
func (s *Spool) Close() error {
	return s.db.Close()
}

func sequenceKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Encode prefixes payload with its xxhash checksum.
func Encode(payload []byte) []byte {
	rec := make([]byte, checksumLen+len(payload))
	binary.BigEndian.PutUint64(rec, xxhash.Sum64(payload))
	copy(rec[checksumLen:], payload)
	return rec
}

// Decode verifies a record written by Encode and returns its payload. The
// payload aliases record.
func Decode(record []byte) ([]byte, error) {
	if len(record) < checksumLen {
		return nil, ErrCorrupt
	}
	payload := record[checksumLen:]
	if binary.BigEndian.Uint64(record) != xxhash.Sum64(payload) {
		return nil, ErrCorrupt
	}
	return payload, nil
}
