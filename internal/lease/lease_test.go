package lease

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// fakeScripter emulates the two lease scripts against an in-memory key space.
type fakeScripter struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newFakeScripter() *fakeScripter {
	return &fakeScripter{values: make(map[string]string)}
}

func (f *fakeScripter) EvalSha(ctx context.Context, sha string, keys []string, args ...any) *goredis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := goredis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}

	key, owner := keys[0], args[0].(string)
	cur, held := f.values[key]

	switch sha {
	case acquire.Hash():
		if !held || cur == owner {
			f.values[key] = owner
			cmd.SetVal(int64(1))
			return cmd
		}
	case release.Hash():
		if held && cur == owner {
			delete(f.values, key)
			cmd.SetVal(int64(1))
			return cmd
		}
	}

	cmd.SetVal(int64(0))

	return cmd
}

func (f *fakeScripter) Eval(ctx context.Context, _ string, _ []string, _ ...any) *goredis.Cmd {
	cmd := goredis.NewCmd(ctx)
	cmd.SetErr(errors.New("unexpected EVAL"))
	return cmd
}

func (f *fakeScripter) EvalRO(ctx context.Context, script string, keys []string, args ...any) *goredis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, sha string, keys []string, args ...any) *goredis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeScripter) ScriptExists(ctx context.Context, _ ...string) *goredis.BoolSliceCmd {
	cmd := goredis.NewBoolSliceCmd(ctx)
	cmd.SetVal([]bool{true})
	return cmd
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, _ string) *goredis.StringCmd {
	cmd := goredis.NewStringCmd(ctx)
	cmd.SetVal("")
	return cmd
}

func TestRedisLease_SingleHolder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rdb := newFakeScripter()

	a := NewRedisLease(rdb, "scan", "scanner-a", 15*time.Second)
	b := NewRedisLease(rdb, "scan", "scanner-b", 15*time.Second)

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("a.Acquire() = %v, %v; want true, nil", ok, err)
	}
	if ok, err := b.Acquire(ctx); err != nil || ok {
		t.Fatalf("b.Acquire() = %v, %v; want false, nil", ok, err)
	}
	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("a.Acquire() renew = %v, %v; want true, nil", ok, err)
	}

	if err := b.Release(ctx); err != nil {
		t.Fatalf("b.Release() error = %v", err)
	}
	if ok, _ := b.Acquire(ctx); ok {
		t.Fatal("b released a lease it did not hold")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("a.Release() error = %v", err)
	}
	if ok, err := b.Acquire(ctx); err != nil || !ok {
		t.Fatalf("b.Acquire() after release = %v, %v; want true, nil", ok, err)
	}
}

func TestRedisLease_BackendError(t *testing.T) {
	t.Parallel()

	rdb := newFakeScripter()
	rdb.err = errors.New("connection reset")

	l := NewRedisLease(rdb, "scan", "scanner-a", time.Second)

	ok, err := l.Acquire(context.Background())
	if err == nil || ok {
		t.Fatalf("Acquire() = %v, %v; want false, error", ok, err)
	}
}

func TestAlways(t *testing.T) {
	t.Parallel()

	var l Lease = Always{}
	if ok, err := l.Acquire(context.Background()); err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v; want true, nil", ok, err)
	}
}
