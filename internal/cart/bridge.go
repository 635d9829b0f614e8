package cart

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"ShopFront/internal/storage"
)

// StorageKey is the single key under which the whole serialized cart
// lives in durable storage.
const StorageKey = "shopfront:cart"

// Bridge hydrates the store from durable storage once, then writes the
// full cart back after every mutation. Writes are best-effort: a
// failure is logged and the in-memory cart stays authoritative.
//
// Write-backs funnel through one worker goroutine holding at most the
// highest-seq snapshot, so rapid mutations coalesce and neither a slow
// write nor an out-of-order notification can clobber a newer cart with
// an older one.
type Bridge struct {
	kv  storage.Store
	log *zap.Logger

	pending chan snapshot
	done    chan struct{}
	stopped chan struct{}
	cancel  func()
	once    sync.Once
}

type snapshot struct {
	seq   uint64
	lines []Line
}

// NewBridge loads the persisted cart into store, then subscribes for
// write-back. Hydration always completes before the subscription is
// registered, so an early mutation can never race an empty write over
// the persisted cart. A missing key or unreadable payload leaves the
// store empty; neither is an error to the caller.
func NewBridge(ctx context.Context, kv storage.Store, store *Store, log *zap.Logger) *Bridge {
	hydrate(ctx, kv, store, log)

	b := &Bridge{
		kv:      kv,
		log:     log,
		pending: make(chan snapshot, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	b.cancel = store.Subscribe(b.enqueue)
	go b.run()
	return b
}

func hydrate(ctx context.Context, kv storage.Store, store *Store, log *zap.Logger) {
	raw, ok, err := kv.Get(ctx, StorageKey)
	if err != nil {
		log.Warn("cart hydration read failed, starting empty", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		log.Warn("persisted cart is unreadable, starting empty", zap.Error(err))
		return
	}
	store.Replace(lines)
	log.Info("cart hydrated", zap.Int("lines", len(lines)))
}

// Close flushes any pending snapshot and stops the worker.
func (b *Bridge) Close() {
	b.once.Do(func() {
		b.cancel()
		close(b.done)
		<-b.stopped
	})
}

// enqueue leaves the highest-seq snapshot in the queue. Notifications
// may arrive out of order under concurrent mutation; comparing seq
// instead of trusting arrival order keeps the persisted state
// last-write-wins with respect to the mutations themselves.
func (b *Bridge) enqueue(seq uint64, lines []Line) {
	snap := snapshot{seq: seq, lines: lines}
	for {
		select {
		case b.pending <- snap:
			return
		default:
			select {
			case cur := <-b.pending:
				if cur.seq > snap.seq {
					snap = cur
				}
			default:
			}
		}
	}
}

func (b *Bridge) run() {
	defer close(b.stopped)
	var written uint64
	for {
		select {
		case snap := <-b.pending:
			written = b.write(snap, written)
		case <-b.done:
			select {
			case snap := <-b.pending:
				b.write(snap, written)
			default:
			}
			return
		}
	}
}

// write persists snap unless an even newer snapshot already made it to
// storage. Returns the highest seq written so far.
func (b *Bridge) write(snap snapshot, written uint64) uint64 {
	if snap.seq <= written {
		return written
	}

	raw, err := json.Marshal(snap.lines)
	if err != nil {
		b.log.Error("cart serialize failed", zap.Error(err))
		return written
	}
	if err := b.kv.Set(context.Background(), StorageKey, string(raw)); err != nil {
		b.log.Error("cart write-back failed", zap.Error(err))
		return written
	}
	b.log.Debug("cart persisted", zap.Uint64("seq", snap.seq), zap.Int("lines", len(snap.lines)))
	return snap.seq
}
