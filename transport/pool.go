package transport

import (
	"math/rand/v2"
	"sync"
	"time"
)

// node is one cluster endpoint and its liveness record. Nodes are owned by
// the pool and never leave the transport package.
type node struct {
	baseURL   string
	deadSince time.Time // zero means live
}

// pool is a thread-safe bucket of nodes that may have downtime.
//
// Selection prefers live nodes, retiring dead ones for revivalDelay to give
// them a chance to recover. Actually probing a node is outside the scope of
// the pool and outside the period of its lock; two goroutines may probe the
// same node simultaneously, disagree, and call markDead and markLive close
// together. It is not clear which is the correct state in that case, so the
// last writer wins.
type pool struct {
	mu           sync.Mutex
	nodes        []*node
	revivalDelay time.Duration
}

func newPool(urls []string, revivalDelay time.Duration) *pool {
	nodes := make([]*node, len(urls))
	for i, u := range urls {
		nodes[i] = &node{baseURL: u}
	}
	return &pool{
		nodes:        nodes,
		revivalDelay: revivalDelay,
	}
}

// selectNode returns a node chosen uniformly at random from those not
// currently dead. A node whose deadSince is older than revivalDelay is
// revived on the spot, so staleness decays without a background sweeper.
// If every node is dead, one is chosen uniformly from the whole set in case
// it has come back earlier than expected; without this fallback a total
// outage would lock the pool out permanently.
func (p *pool) selectNode(now time.Time) *node {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := make([]*node, 0, len(p.nodes))
	for _, n := range p.nodes {
		if !n.deadSince.IsZero() && now.Sub(n.deadSince) >= p.revivalDelay {
			n.deadSince = time.Time{}
		}
		if n.deadSince.IsZero() {
			live = append(live, n)
		}
	}

	if len(live) > 0 {
		return live[rand.IntN(len(live))]
	}
	return p.nodes[rand.IntN(len(p.nodes))]
}

// markDead retires a node until revivalDelay has passed, unless all nodes
// end up dead. Marking an already-dead node again is a no-op: that would
// push its revival farther away.
func (p *pool) markDead(n *node, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !n.deadSince.IsZero() {
		return false
	}
	n.deadSince = now
	return true
}

// markLive returns a node to normal rotation. Called after any attempt
// against it succeeds, including attempts handed out under the all-dead
// fallback; a no-op if the node is already live.
func (p *pool) markLive(n *node) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n.deadSince.IsZero() {
		return false
	}
	n.deadSince = time.Time{}
	return true
}

// deadCount reports how many nodes are currently marked dead.
func (p *pool) deadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, n := range p.nodes {
		if !n.deadSince.IsZero() {
			count++
		}
	}
	return count
}
