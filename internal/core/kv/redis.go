package kv

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store 只存短期计数和锁，不缓存业务实体
type Store struct {
	RDB    *redis.Client
	prefix string
}

func New(addr, pass string, db int) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}))
}

func NewWithClient(rdb *redis.Client) *Store {
	return &Store{RDB: rdb, prefix: "ta:"}
}

func (s *Store) key(k string) string { return s.prefix + k }

func (s *Store) Ping(ctx context.Context) error { return s.RDB.Ping(ctx).Err() }

func (s *Store) Close() error { return s.RDB.Close() }

// Allow 固定窗口计数：窗口内第 limit+1 次起返回 false。
// INCR 和 EXPIRE NX 放在同一个 MULTI 里，计数键不会丢 TTL
func (s *Store) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	k := s.key("rl:" + key)
	var incr *redis.IntCmd
	_, err := s.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.ExpireNX(ctx, k, window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= int64(limit), nil
}

var ErrLocked = errors.New("kv: key is locked")

// Lock SETNX 互斥，返回的 unlock 只删除自己持有的锁
func (s *Store) Lock(ctx context.Context, key, owner string, ttl time.Duration) (func(context.Context), error) {
	k := s.key("lock:" + key)
	ok, err := s.RDB.SetNX(ctx, k, owner, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLocked
	}
	return func(ctx context.Context) {
		_ = unlockScript.Run(ctx, s.RDB, []string{k}, owner).Err()
	}, nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
