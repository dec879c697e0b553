// Package cache keeps precomputed transform outputs keyed by a fingerprint of
// everything that determines them.
package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"benchml/internal/matrix"
)

// ErrUnhashable is returned when a fingerprint part cannot be encoded.
var ErrUnhashable = errors.New("cache: unhashable value")

// Entry is the cached outcome of one transform call. Params is nil for map calls.
type Entry struct {
	Stream map[string]any
	Params map[string]any
}

// Cache stores entries by key.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, e Entry) error
}

func init() {
	gob.Register(&matrix.Dense{})
	gob.Register([]*matrix.Dense{})
	gob.Register([]float64{})
	gob.Register([]any{})
	gob.Register(map[string]any{})
}

// Fingerprint hashes parts into a stable key. Parts are encoded as JSON,
// which orders map keys, so equal values always hash equally.
func Fingerprint(parts ...any) (string, error) {
	h := xxhash.New()
	for i, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("part %d (%T): %w: %v", i, p, ErrUnhashable, err)
		}
		_, _ = h.Write(b)
		_, _ = h.Write([]byte{0})
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}

// Encode serialises an entry with gob; value types must be gob-registered.
func Encode(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Decode(b []byte) (Entry, error) {
	var e Entry
	err := gob.NewDecoder(bytes.NewReader(b)).Decode(&e)
	return e, err
}

// Memory is an in-process cache. Values are shared, not copied.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() *Memory { return &Memory{entries: map[string]Entry{}} }

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	return e, ok, nil
}

func (m *Memory) Put(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	m.entries[key] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
