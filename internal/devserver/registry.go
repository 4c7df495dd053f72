package devserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// SessionFile is one upload a client can refer to as file:<FileID>.
type SessionFile struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Size   int64  `json:"size"`
}

// FileRegistry remembers which files each client uploaded. Entries survive
// reconnects of the same client id.
type FileRegistry interface {
	Add(ctx context.Context, clientID string, file SessionFile) error
	List(ctx context.Context, clientID string) ([]SessionFile, error)
}

type MemoryRegistry struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{cache: cache.New(cache.NoExpiration, 0)}
}

func (r *MemoryRegistry) Add(_ context.Context, clientID string, file SessionFile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var files []SessionFile
	if x, found := r.cache.Get(clientID); found {
		files = x.([]SessionFile)
	}
	files = append(files[:len(files):len(files)], file)
	r.cache.Set(clientID, files, cache.NoExpiration)
	return nil
}

func (r *MemoryRegistry) List(_ context.Context, clientID string) ([]SessionFile, error) {
	if x, found := r.cache.Get(clientID); found {
		return x.([]SessionFile), nil
	}
	return nil, nil
}

const redisKeyPrefix = "aicca:session_files:"

// RedisRegistry shares session files between dev server instances.
type RedisRegistry struct {
	rdb *redis.Client
}

func NewRedisRegistry(rdb *redis.Client) *RedisRegistry {
	return &RedisRegistry{rdb: rdb}
}

func (r *RedisRegistry) Add(ctx context.Context, clientID string, file SessionFile) error {
	data, err := json.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal session file: %w", err)
	}
	if err := r.rdb.RPush(ctx, redisKeyPrefix+clientID, data).Err(); err != nil {
		return fmt.Errorf("store session file: %w", err)
	}
	return nil
}

func (r *RedisRegistry) List(ctx context.Context, clientID string) ([]SessionFile, error) {
	raw, err := r.rdb.LRange(ctx, redisKeyPrefix+clientID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load session files: %w", err)
	}
	files := make([]SessionFile, 0, len(raw))
	for _, item := range raw {
		var f SessionFile
		if err := json.Unmarshal([]byte(item), &f); err != nil {
			continue
		}
		files = append(files, f)
	}
	return files, nil
}
