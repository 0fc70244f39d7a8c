// Package checkpoint persists serialized bookmarks so that a feed resumes
// where it stopped.
package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Store saves one bookmark per key. Load returns "" for a key that was never
// saved.
type Store interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, bookmark string) error
}

// Memory keeps bookmarks in process memory.
type Memory struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemory() *Memory {
	return &Memory{m: map[string]string{}}
}

func (s *Memory) Load(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *Memory) Save(_ context.Context, key, bookmark string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = bookmark
	return nil
}

// File stores each bookmark in its own file under a directory. Saves write a
// temporary file and rename it over the old one.
type File struct {
	dir string
}

func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("checkpoint: missing directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "checkpoint")
	}
	return &File{dir: dir}, nil
}

var unsafeChars = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_")

func (s *File) path(key string) string {
	return filepath.Join(s.dir, unsafeChars.Replace(key)+".xml")
}

func (s *File) Load(_ context.Context, key string) (string, error) {
	bts, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "checkpoint: load %s", key)
	}
	return string(bts), nil
}

func (s *File) Save(_ context.Context, key, bookmark string) error {
	f, err := os.CreateTemp(s.dir, ".bookmark-*")
	if err != nil {
		return errors.Wrapf(err, "checkpoint: save %s", key)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.WriteString(bookmark); err != nil {
		f.Close()
		return errors.Wrapf(err, "checkpoint: save %s", key)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "checkpoint: save %s", key)
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "checkpoint: save %s", key)
	}
	return errors.Wrapf(os.Rename(tmp, s.path(key)), "checkpoint: save %s", key)
}

// Redis stores bookmarks as plain string keys.
type Redis struct {
	client *goredis.Client
	prefix string
}

type RedisOption func(*Redis)

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

func NewRedis(opts *goredis.Options, ropts ...RedisOption) *Redis {
	r := &Redis{
		client: goredis.NewClient(opts),
		prefix: "winevt:bookmark:",
	}
	for _, o := range ropts {
		o(r)
	}
	return r
}

func (s *Redis) Load(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == goredis.Nil {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "checkpoint: load %s", key)
	}
	return v, nil
}

func (s *Redis) Save(ctx context.Context, key, bookmark string) error {
	err := s.client.Set(ctx, s.prefix+key, bookmark, 0).Err()
	return errors.Wrapf(err, "checkpoint: save %s", key)
}

func (s *Redis) Close() error {
	return s.client.Close()
}
