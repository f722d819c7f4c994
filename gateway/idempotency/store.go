package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	recordKeyPrefix  = "record:"
	createdKeyPrefix = "created:"
)

// Record is a completed response remembered under an idempotency key.
type Record struct {
	Key         string    `json:"key"`
	RequestID   string    `json:"request_id"`
	Fingerprint string    `json:"fingerprint"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists idempotency records.
type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Put(ctx context.Context, record Record) error
	Prune(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}

// LevelDBStore keeps records in LevelDB with a secondary index ordered by
// creation time, which Prune walks.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) a LevelDB database at the provided path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("idempotency store path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve idempotency store path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open idempotency store: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

// Close releases the underlying LevelDB resources.
func (s *LevelDBStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *LevelDBStore) Get(ctx context.Context, key string) (Record, bool, error) {
	if s == nil || s.db == nil {
		return Record{}, false, fmt.Errorf("idempotency store not configured")
	}
	raw, err := s.db.Get([]byte(recordKeyPrefix+key), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return Record{}, false, nil
	case err != nil:
		return Record{}, false, fmt.Errorf("load idempotency record: %w", err)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return Record{}, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return record, true, nil
}

// Put stores record, replacing any previous record for the same key along
// with its index entry.
func (s *LevelDBStore) Put(ctx context.Context, record Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("idempotency store not configured")
	}
	if strings.TrimSpace(record.Key) == "" {
		return fmt.Errorf("idempotency record key required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.CreatedAt = record.CreatedAt.UTC()
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode idempotency record: %w", err)
	}

	batch := new(leveldb.Batch)
	if previous, ok, err := s.Get(ctx, record.Key); err == nil && ok {
		batch.Delete([]byte(createdKey(previous.CreatedAt.UnixNano(), previous.Key)))
	}
	batch.Put([]byte(recordKeyPrefix+record.Key), encoded)
	batch.Put([]byte(createdKey(record.CreatedAt.UnixNano(), record.Key)), nil)
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("record idempotency key: %w", err)
	}
	return nil
}

// Prune deletes records created before cutoff and reports how many went.
func (s *LevelDBStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("idempotency store not configured")
	}
	cutoffKey := []byte(createdKey(cutoff.UTC().UnixNano(), ""))
	iter := s.db.NewIterator(util.BytesPrefix([]byte(createdKeyPrefix)), nil)
	defer iter.Release()

	batch := new(leveldb.Batch)
	removed := 0
	for iter.Next() {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		if string(iter.Key()) >= string(cutoffKey) {
			break
		}
		key, _, ok := parseCreatedKey(iter.Key())
		if !ok {
			continue
		}
		batch.Delete(append([]byte(nil), iter.Key()...))
		batch.Delete([]byte(recordKeyPrefix + key))
		removed++
	}
	if err := iter.Error(); err != nil {
		return 0, fmt.Errorf("iterate idempotency index: %w", err)
	}
	if batch.Len() > 0 {
		if err := s.db.Write(batch, nil); err != nil {
			return 0, fmt.Errorf("prune idempotency records: %w", err)
		}
	}
	return removed, nil
}

func createdKey(nanos int64, key string) string {
	return fmt.Sprintf("%s%020d:%s", createdKeyPrefix, nanos, key)
}

func parseCreatedKey(raw []byte) (string, int64, bool) {
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 {
		return "", 0, false
	}
	nanos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return parts[2], nanos, true
}
