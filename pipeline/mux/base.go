package mux

import "github.com/pipeflow/pipeflow/pipeline"

// KeyFunc derives the multiplexing key (e.g. a target host:port) a
// pipeline Context should share a downstream session under.
type KeyFunc func(ctx *pipeline.Context) any

// Base resolves a pipeline Context to its SessionCluster and lets a
// QueueMuxer request Sessions from it. Unlike the Sessions it hands out,
// Base itself is never shared: one QueueMuxer (and so one Filter
// instance/pipeline run) owns exactly one Base, but every Base sharing a
// key resolves to the same underlying SessionCluster, and therefore can
// land streams on the very same Session as any other Base presenting
// that key — which is how sessions end up shared across independently
// constructed Filter instances.
//
// Base is not a Filter itself — QueueMuxer embeds it and adds
// stream-buffering and reply-routing semantics on top.
type Base struct {
	pool    *SessionPool
	keyFunc KeyFunc
	options Options

	key     any
	cluster *SessionCluster
	opened  bool
}

// NewBase constructs a Base sharing pool and selecting sessions via
// keyFunc.
func NewBase(pool *SessionPool, keyFunc KeyFunc, opts Options) *Base {
	return &Base{pool: pool, keyFunc: keyFunc, options: opts.withDefaults()}
}

// Open resolves ctx's key and its cluster. Open is a no-op on a Base
// that has already resolved a key, so repeated Opens within the same
// pipeline run are cheap and idempotent.
func (b *Base) Open(ctx *pipeline.Context) error {
	if b.opened {
		return nil
	}
	if b.pool.isShutdown() {
		return ErrPoolShutdown
	}
	b.key = b.keyFunc(ctx)
	b.cluster = b.pool.clusterFor(b.key)
	b.opened = true
	return nil
}

// acquire admits one more stream onto whichever Session in b's cluster
// has room, per the cluster's share-count rule. See
// SessionCluster.acquire for the pending/resume contract.
func (b *Base) acquire(resume func(*Session)) (*Session, bool) {
	return b.cluster.acquire(b.options, resume)
}

// Reset clears the resolved key/cluster, so the Base can be reused for
// the next pipeline run. It releases no Session itself — the owning
// QueueMuxer releases every Stream still in flight before calling Reset.
func (b *Base) Reset() {
	b.key = nil
	b.cluster = nil
	b.opened = false
}

// Shutdown is Reset; Base holds no session state of its own to drain.
func (b *Base) Shutdown() {
	b.Reset()
}
