// Package blob stores photo bytes outside the record store. Records carry
// only a content-addressed PhotoRef; bytes and direct URLs resolve here.
package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"

	"schoolledger/internal/model"
)

var ErrNotFound = errors.New("blob not found")

type Store interface {
	Put(ctx context.Context, data []byte) (model.PhotoRef, error)
	Bytes(ctx context.Context, ref model.PhotoRef) ([]byte, error)
	DirectURL(ref model.PhotoRef) string
}

func refFor(data []byte) model.PhotoRef {
	sum := sha256.Sum256(data)
	return model.PhotoRef(hex.EncodeToString(sum[:]))
}

// RedisStore keeps photo bytes in redis under content-addressed keys, so
// re-uploading the same photo is a no-op and refs survive re-import.
type RedisStore struct {
	client  *redis.Client
	baseURL string
}

func NewRedisStore(client *redis.Client, baseURL string) *RedisStore {
	return &RedisStore{client: client, baseURL: baseURL}
}

func (s *RedisStore) key(ref model.PhotoRef) string {
	return "photo:" + string(ref)
}

func (s *RedisStore) Put(ctx context.Context, data []byte) (model.PhotoRef, error) {
	ref := refFor(data)
	if err := s.client.Set(ctx, s.key(ref), data, 0).Err(); err != nil {
		return "", err
	}
	return ref, nil
}

func (s *RedisStore) Bytes(ctx context.Context, ref model.PhotoRef) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(ref)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) DirectURL(ref model.PhotoRef) string {
	return s.baseURL + "/photos/" + string(ref)
}

// MemoryStore backs deployments without redis, and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[model.PhotoRef][]byte
	baseURL string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	return &MemoryStore{blobs: map[model.PhotoRef][]byte{}, baseURL: baseURL}
}

func (s *MemoryStore) Put(_ context.Context, data []byte) (model.PhotoRef, error) {
	ref := refFor(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (s *MemoryStore) Bytes(_ context.Context, ref model.PhotoRef) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) DirectURL(ref model.PhotoRef) string {
	return s.baseURL + "/photos/" + string(ref)
}
