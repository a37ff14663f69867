package models

import (
	"container/heap"
	"sync"
)

// A sequential id generator. Released ids are handed out again, lowest
// first, before new ids are allocated.
type IDGenerator struct {
	mutex     sync.Mutex
	currentID uint32
	released  releasedIDs
}

// New returns a sequential id.
func (g *IDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if len(g.released) != 0 {
		return heap.Pop(&g.released).(uint32)
	}

	g.currentID++
	return g.currentID
}

// Reuse marks the given id as reusable. Ids that were never returned by New
// or that are already reusable are ignored.
func (g *IDGenerator) Reuse(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 || id > g.currentID {
		return
	}

	for _, released := range g.released {
		if released == id {
			return
		}
	}
	heap.Push(&g.released, id)
}

// A min-heap of released ids.
type releasedIDs []uint32

func (r releasedIDs) Len() int           { return len(r) }
func (r releasedIDs) Less(i, j int) bool { return r[i] < r[j] }
func (r releasedIDs) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }

func (r *releasedIDs) Push(v any) {
	*r = append(*r, v.(uint32))
}

func (r *releasedIDs) Pop() any {
	old := *r
	n := len(old)
	v := old[n-1]
	*r = old[:n-1]
	return v
}
