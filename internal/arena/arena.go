// Package arena hands out host-visible memory blocks and tracks every one of
// them until it is released.
package arena

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/beyawnko/Majestik-World/internal/delta"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrUnknownHandle = errors.New("arena: unknown handle")
	ErrCorrupted     = errors.New("arena: block corrupted")
	ErrEmptyPayload  = errors.New("arena: empty payload")
)

// Handle names one outstanding block. Handles start at 1 and are never
// reused within a process.
type Handle uint64

// Owner groups blocks so they can be reclaimed together, typically one per
// simulation.
type Owner uint64

// Allocator provides the memory behind blocks. Implementations must be safe
// for concurrent use.
type Allocator interface {
	Alloc(n int) ([]byte, error)
	Free(b []byte)
}

// HeapAllocator allocates from the Go heap. Freed blocks are zeroed so stale
// reads by the host see no data.
type HeapAllocator struct{}

func (HeapAllocator) Alloc(n int) ([]byte, error) { return make([]byte, n), nil }

func (HeapAllocator) Free(b []byte) { clear(b) }

// Block is a published block. Data aliases arena memory and is valid until
// the handle is released.
type Block struct {
	Handle Handle
	Data   []byte
}

type entry struct {
	owner  Owner
	data   []byte
	digest [32]byte
}

// Stats is a point-in-time view of the registry.
type Stats struct {
	Live            int
	LiveBytes       int
	Published       uint64
	Released        uint64
	Reclaimed       uint64 // freed by ReleaseAll
	ReleaseAllCalls uint64
}

// Arena is the live-block registry. All methods are safe for concurrent use.
type Arena struct {
	alloc Allocator
	log   *zap.Logger
	next  atomic.Uint64

	mu    sync.Mutex
	live  map[Handle]entry
	stats Stats
}

// Option configures an Arena.
type Option func(*Arena)

func WithAllocator(a Allocator) Option {
	return func(ar *Arena) { ar.alloc = a }
}

func WithLogger(log *zap.Logger) Option {
	return func(ar *Arena) { ar.log = log }
}

func New(opts ...Option) *Arena {
	a := &Arena{
		alloc: HeapAllocator{},
		log:   zap.NewNop(),
		live:  make(map[Handle]entry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Publish copies payload into a block of exactly len(payload) bytes and
// registers it under a fresh handle.
func (a *Arena) Publish(owner Owner, payload []byte) (Block, error) {
	if len(payload) == 0 {
		return Block{}, ErrEmptyPayload
	}
	buf, err := a.alloc.Alloc(len(payload))
	if err != nil {
		return Block{}, fmt.Errorf("arena: alloc %d bytes: %w", len(payload), err)
	}
	if len(buf) != len(payload) {
		a.alloc.Free(buf)
		return Block{}, fmt.Errorf("arena: allocator returned %d bytes, want %d", len(buf), len(payload))
	}
	copy(buf, payload)
	h := Handle(a.next.Add(1))

	a.mu.Lock()
	a.live[h] = entry{owner: owner, data: buf, digest: blake2b.Sum256(buf)}
	a.stats.Published++
	a.stats.LiveBytes += len(buf)
	a.mu.Unlock()

	return Block{Handle: h, Data: buf}, nil
}

// PublishBatch serializes b and publishes it.
func (a *Arena) PublishBatch(owner Owner, b delta.Batch) (Block, error) {
	payload, err := b.MarshalBinary()
	if err != nil {
		return Block{}, fmt.Errorf("arena: encode tick %d: %w", b.Tick, err)
	}
	return a.Publish(owner, payload)
}

// Release frees the block behind h. An unknown or already released handle
// returns ErrUnknownHandle and touches no memory. A block whose content
// changed since Publish is not freed and stays registered; Release returns
// ErrCorrupted.
func (a *Arena) Release(h Handle) error {
	return a.release(h, func(entry) bool { return true })
}

// ReleaseOwned is Release restricted to blocks published by owner. A block
// belonging to another owner is reported as unknown.
func (a *Arena) ReleaseOwned(owner Owner, h Handle) error {
	return a.release(h, func(e entry) bool { return e.owner == owner })
}

func (a *Arena) release(h Handle, match func(entry) bool) error {
	a.mu.Lock()
	e, ok := a.live[h]
	if !ok || !match(e) {
		a.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	delete(a.live, h)
	a.mu.Unlock()

	if blake2b.Sum256(e.data) != e.digest {
		a.mu.Lock()
		a.live[h] = e
		a.mu.Unlock()
		a.log.Error("block corrupted", zap.Uint64("handle", uint64(h)), zap.Uint64("owner", uint64(e.owner)))
		return fmt.Errorf("%w: handle %d", ErrCorrupted, h)
	}
	a.alloc.Free(e.data)

	a.mu.Lock()
	a.stats.Released++
	a.stats.LiveBytes -= len(e.data)
	a.mu.Unlock()
	return nil
}

// ReleaseAll force-reclaims every block still registered to owner and
// returns how many were freed. Corrupted blocks are left registered and
// reported through ErrCorrupted after the rest are freed.
func (a *Arena) ReleaseAll(owner Owner) (int, error) {
	a.mu.Lock()
	a.stats.ReleaseAllCalls++
	var taken []Handle
	var entries []entry
	for h, e := range a.live {
		if e.owner == owner {
			taken = append(taken, h)
			entries = append(entries, e)
			delete(a.live, h)
		}
	}
	a.mu.Unlock()

	var corrupted []int
	freed, size := 0, 0
	for i, e := range entries {
		if blake2b.Sum256(e.data) != e.digest {
			corrupted = append(corrupted, i)
			continue
		}
		a.alloc.Free(e.data)
		freed++
		size += len(e.data)
	}

	a.mu.Lock()
	for _, i := range corrupted {
		a.live[taken[i]] = entries[i]
	}
	a.stats.Reclaimed += uint64(freed)
	a.stats.LiveBytes -= size
	a.mu.Unlock()

	if freed > 0 {
		a.log.Info("reclaimed unreleased blocks", zap.Uint64("owner", uint64(owner)), zap.Int("blocks", freed))
	}
	if len(corrupted) > 0 {
		a.log.Error("corrupted blocks at teardown", zap.Uint64("owner", uint64(owner)), zap.Int("blocks", len(corrupted)))
		return freed, fmt.Errorf("%w: %d blocks of owner %d", ErrCorrupted, len(corrupted), owner)
	}
	return freed, nil
}

// Live returns the number of blocks registered to owner.
func (a *Arena) Live(owner Owner) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, e := range a.live {
		if e.owner == owner {
			n++
		}
	}
	return n
}

func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.stats
	s.Live = len(a.live)
	return s
}
