package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
)

func newTestBareRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if _, err := git.PlainInit(root, true); err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	return root
}

func TestNewStoragePoolDefaultsSizeToNumCPU(t *testing.T) {
	root := newTestBareRepo(t)

	pool, err := NewStoragePool(root, 0)
	if err != nil {
		t.Fatalf("NewStoragePool: %v", err)
	}
	if pool.Size() <= 0 {
		t.Fatalf("expected a positive default size, got %d", pool.Size())
	}
}

func TestStoragePoolAcquireRelease(t *testing.T) {
	root := newTestBareRepo(t)

	pool, err := NewStoragePool(root, 2)
	if err != nil {
		t.Fatalf("NewStoragePool: %v", err)
	}
	if pool.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", pool.Size())
	}

	ctx := context.Background()
	first, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	second, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	done := make(chan struct{})
	go func() {
		repo, err := pool.Acquire(ctx)
		if err != nil {
			t.Errorf("third Acquire: %v", err)
			return
		}
		pool.Release(repo)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("third acquire should block while both handles are out")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Release(first)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("third acquire should succeed once a handle is released")
	}

	pool.Release(second)
}

func TestStoragePoolAcquireRespectsContext(t *testing.T) {
	root := newTestBareRepo(t)

	pool, err := NewStoragePool(root, 1)
	if err != nil {
		t.Fatalf("NewStoragePool: %v", err)
	}

	repo, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer pool.Release(repo)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := pool.Acquire(ctx); err == nil {
		t.Fatal("expected Acquire to fail once the pool is exhausted and ctx expires")
	}
}
