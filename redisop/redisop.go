// Package redisop provides Redis writes as mend tasks that know how to undo
// themselves, so they can take part in an all-or-nothing group.
package redisop

import (
	"context"
	"fmt"
	"sync"
	"time"

	mend "github.com/UniQw/mend-go"
	"github.com/redis/go-redis/v9"
)

// setScript atomically captures the previous value and its TTL, then writes the new one.
// It returns {SET reply, existed, old value, pttl}.
var setScript = redis.NewScript(
	// language=Lua
	`
	local old = redis.call('GET', KEYS[1])
	local ttl = redis.call('PTTL', KEYS[1])
	local r = redis.call('SET', KEYS[1], ARGV[1])
	if old then return {r.ok, 1, old, ttl} end
	return {r.ok, 0, '', ttl}
	`,
)

// delScript atomically captures the value and its TTL before deleting the key.
// It returns {deleted, existed, old value, pttl}.
var delScript = redis.NewScript(
	// language=Lua
	`
	local old = redis.call('GET', KEYS[1])
	local ttl = redis.call('PTTL', KEYS[1])
	local n = redis.call('DEL', KEYS[1])
	if old then return {n, 1, old, ttl} end
	return {n, 0, '', ttl}
	`,
)

// snapshot is the key's state before the task first wrote to it.
type snapshot struct {
	mu      sync.Mutex
	taken   bool
	existed bool
	value   string
	ttl     time.Duration
}

// record keeps only the first capture; later attempts would see the task's own write.
func (s *snapshot) record(existed bool, value string, pttl int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.taken {
		return
	}
	s.taken, s.existed, s.value = true, existed, value
	if pttl > 0 {
		s.ttl = time.Duration(pttl) * time.Millisecond
	}
}

// restore puts the key back the way record found it.
func (s *snapshot) restore(ctx context.Context, rdb redis.UniversalClient, key string) (bool, error) {
	s.mu.Lock()
	taken, existed, value, ttl := s.taken, s.existed, s.value, s.ttl
	s.mu.Unlock()

	if !taken {
		// nothing was written
		return true, nil
	}
	if !existed {
		if err := rdb.Del(ctx, key).Err(); err != nil {
			return false, fmt.Errorf("redisop: delete %s: %w", key, err)
		}
		return true, nil
	}
	if err := rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, fmt.Errorf("redisop: restore %s: %w", key, err)
	}
	return true, nil
}

// Set writes value to key. Reverting restores the previous value and TTL, or
// deletes the key if it did not exist. opts are applied after the built-in
// revert, so passing NoRevert is a programmer error.
func Set(rdb redis.UniversalClient, key, value string, opts ...mend.Option) (*mend.Task[string], error) {
	snap := &snapshot{}
	exec := func(ctx context.Context) (string, error) {
		res, err := setScript.Run(ctx, rdb, []string{key}, value).Slice()
		if err != nil {
			return "", fmt.Errorf("redisop: set %s: %w", key, err)
		}
		reply, existed, old, pttl, err := parseReply(res)
		if err != nil {
			return "", fmt.Errorf("redisop: set %s: %w", key, err)
		}
		snap.record(existed, old, pttl)
		return reply, nil
	}
	revert := func(ctx context.Context) (bool, error) {
		return snap.restore(ctx, rdb, key)
	}
	return mend.New(exec, isOK, append([]mend.Option{mend.Revert(revert)}, opts...)...)
}

// SetJSON is Set with v encoded by mend.DefaultEncoder.
func SetJSON[V any](rdb redis.UniversalClient, key string, v V, opts ...mend.Option) (*mend.Task[string], error) {
	data, err := mend.DefaultEncoder.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("redisop: encode %s: %w", key, err)
	}
	return Set(rdb, key, string(data), opts...)
}

// GetJSON reads key and decodes it with mend.DefaultEncoder.
func GetJSON[V any](ctx context.Context, rdb redis.UniversalClient, key string) (V, error) {
	var v V
	data, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return v, err
	}
	if err := mend.DefaultEncoder.Decode(data, &v); err != nil {
		return v, fmt.Errorf("redisop: decode %s: %w", key, err)
	}
	return v, nil
}

// IncrBy adds delta to the integer at key. Reverting subtracts delta once for
// every attempt that was applied, retries included.
func IncrBy(rdb redis.UniversalClient, key string, delta int64, opts ...mend.Option) (*mend.Task[int64], error) {
	return incrBy(rdb, key, delta, func(int64) bool { return true }, opts)
}

// Debit subtracts amount from the integer at key and succeeds only when the
// result is not negative. It is not retried: an overdraft is compensated at once.
func Debit(rdb redis.UniversalClient, key string, amount int64, opts ...mend.Option) (*mend.Task[int64], error) {
	opts = append([]mend.Option{mend.NotRetryable()}, opts...)
	return incrBy(rdb, key, -amount, func(v int64) bool { return v >= 0 }, opts)
}

func incrBy(rdb redis.UniversalClient, key string, delta int64, success mend.SuccessFunc[int64], opts []mend.Option) (*mend.Task[int64], error) {
	var (
		mu      sync.Mutex
		applied int64
	)
	exec := func(ctx context.Context) (int64, error) {
		v, err := rdb.IncrBy(ctx, key, delta).Result()
		if err != nil {
			return 0, fmt.Errorf("redisop: incrby %s: %w", key, err)
		}
		mu.Lock()
		applied++
		mu.Unlock()
		return v, nil
	}
	revert := func(ctx context.Context) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if applied == 0 {
			return true, nil
		}
		if err := rdb.DecrBy(ctx, key, delta*applied).Err(); err != nil {
			return false, fmt.Errorf("redisop: undo incrby %s: %w", key, err)
		}
		applied = 0
		return true, nil
	}
	return mend.New(exec, success, append([]mend.Option{mend.Revert(revert)}, opts...)...)
}

// Delete removes key and returns the number of keys removed. Reverting
// restores the deleted value and TTL.
func Delete(rdb redis.UniversalClient, key string, opts ...mend.Option) (*mend.Task[int64], error) {
	snap := &snapshot{}
	exec := func(ctx context.Context) (int64, error) {
		res, err := delScript.Run(ctx, rdb, []string{key}).Slice()
		if err != nil {
			return 0, fmt.Errorf("redisop: delete %s: %w", key, err)
		}
		if len(res) != 4 {
			return 0, fmt.Errorf("redisop: delete %s: unexpected reply %v", key, res)
		}
		n, _ := res[0].(int64)
		existed, _ := res[1].(int64)
		old, _ := res[2].(string)
		pttl, _ := res[3].(int64)
		snap.record(existed == 1, old, pttl)
		return n, nil
	}
	revert := func(ctx context.Context) (bool, error) {
		return snap.restoreIfDeleted(ctx, rdb, key)
	}
	return mend.New(exec, func(int64) bool { return true }, append([]mend.Option{mend.Revert(revert)}, opts...)...)
}

// restoreIfDeleted writes the captured value back; a key that was absent stays absent.
func (s *snapshot) restoreIfDeleted(ctx context.Context, rdb redis.UniversalClient, key string) (bool, error) {
	s.mu.Lock()
	existed := s.taken && s.existed
	s.mu.Unlock()
	if !existed {
		return true, nil
	}
	return s.restore(ctx, rdb, key)
}

func parseReply(res []any) (reply string, existed bool, old string, pttl int64, err error) {
	if len(res) != 4 {
		return "", false, "", 0, fmt.Errorf("unexpected reply %v", res)
	}
	reply, _ = res[0].(string)
	e, _ := res[1].(int64)
	old, _ = res[2].(string)
	pttl, _ = res[3].(int64)
	return reply, e == 1, old, pttl, nil
}

func isOK(reply string) bool { return reply == "OK" }
