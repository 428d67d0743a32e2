package cache

import (
	"sync"

	"github.com/livetrack/mapview/internal/render"
)

// ViewPool holds annotation views released by a surface so that they can be
// handed out again for the same reuse identifier.
type ViewPool struct {
	mu    sync.RWMutex
	views map[string][]*render.View
	limit int
}

// NewViewPool creates a pool keeping at most limit views per reuse
// identifier. A limit <= 0 means unbounded.
func NewViewPool(limit int) *ViewPool {
	return &ViewPool{
		views: make(map[string][]*render.View),
		limit: limit,
	}
}

// Put releases a view for reuse. Views beyond the limit are dropped.
func (p *ViewPool) Put(v *render.View) {
	if v == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	queue := p.views[v.ReuseID]
	if p.limit > 0 && len(queue) >= p.limit {
		return
	}
	p.views[v.ReuseID] = append(queue, v)
}

// Dequeue takes the oldest released view for reuseID.
func (p *ViewPool) Dequeue(reuseID string) (*render.View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	queue := p.views[reuseID]
	if len(queue) == 0 {
		return nil, false
	}
	v := queue[0]
	queue[0] = nil
	p.views[reuseID] = queue[1:]
	return v, true
}

// DequeueReusableView lets the pool act as a render.Dequeuer.
func (p *ViewPool) DequeueReusableView(reuseID string) (*render.View, bool) {
	return p.Dequeue(reuseID)
}

// Len returns how many views are waiting for reuseID.
func (p *ViewPool) Len(reuseID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.views[reuseID])
}

// Reset clears the pool
func (p *ViewPool) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.views = make(map[string][]*render.View)
}
