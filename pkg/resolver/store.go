package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryStore keeps entries for the life of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Get(_ context.Context, reference string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[reference]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) Put(_ context.Context, reference string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[reference] = entry
	return nil
}

// FileStore keeps entries in a JSON document on disk so they survive restarts.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore uses the JSON file at path, created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Get(_ context.Context, reference string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load()
	if err != nil {
		return nil, err
	}
	e, ok := entries[reference]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *FileStore) Put(_ context.Context, reference string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load()
	if err != nil {
		return err
	}
	entries[reference] = entry
	return s.save(entries)
}

func (s *FileStore) load() (map[string]Entry, error) {
	entries := make(map[string]Entry)
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return entries, nil
}

// save writes through a temp file so a crash never leaves half a document.
func (s *FileStore) save(entries map[string]Entry) error {
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".resolver-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// RedisStore keeps entries under prefixed keys that expire after ttl.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// DefaultRedisPrefix namespaces resolver keys.
const DefaultRedisPrefix = "proposaldb:draft:"

// NewRedisStore connects to the redis:// URL. A zero ttl keeps keys forever.
func NewRedisStore(url, prefix string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStoreFromClient(redis.NewClient(opt), prefix, ttl), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, reference string) (*Entry, error) {
	raw, err := s.client.Get(ctx, s.prefix+reference).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode entry %q: %w", reference, err)
	}
	return &e, nil
}

func (s *RedisStore) Put(ctx context.Context, reference string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+reference, raw, s.ttl).Err()
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
