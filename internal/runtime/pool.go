// Package runtime hosts the distinguished runtime loop: the QUIC
// accept loop, the periodic membership/broadcast tickers, the storage
// pool, the per-remote fetcher slots, and the keyed rate limiter
// applied to inbound connections.
package runtime

import (
	"context"
	"fmt"
	"runtime"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-billy/v5/osfs"
)

// StoragePool is a bounded pool of open Git storage handles, sized to
// runtime.NumCPU() (the logical CPU count) by default: acquisitions may block under
// load, and callers must hold a handle only for the duration of one
// logical operation.
type StoragePool struct {
	root  string
	slots chan *git.Repository
}

// NewStoragePool opens size repositories rooted at root (a bare Git
// repository directory) and returns a pool that hands them out
// round-robin. size defaults to runtime.NumCPU() if <= 0.
func NewStoragePool(root string, size int) (*StoragePool, error) {
	if size <= 0 {
		size = runtime.NumCPU()
	}

	slots := make(chan *git.Repository, size)
	for i := 0; i < size; i++ {
		fs := osfs.New(root)
		storer := filesystem.NewStorage(fs, nil)
		repo, err := git.Open(storer, fs)
		if err != nil {
			return nil, fmt.Errorf("runtime: open storage handle %d at %s: %w", i, root, err)
		}
		slots <- repo
	}

	return &StoragePool{root: root, slots: slots}, nil
}

// Acquire blocks until a handle is available or ctx is done.
func (p *StoragePool) Acquire(ctx context.Context) (*git.Repository, error) {
	select {
	case repo := <-p.slots:
		return repo, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("runtime: acquire storage handle: %w", ctx.Err())
	}
}

// Release returns repo to the pool.
func (p *StoragePool) Release(repo *git.Repository) {
	p.slots <- repo
}

// Size reports the pool's configured capacity.
func (p *StoragePool) Size() int {
	return cap(p.slots)
}
