package keyheap

// Item is one key/priority pair tracked by the heap. Priority is a UnixNano
// timestamp: an expiry instant for cache entries, a next-run instant for
// scheduled tasks.
type Item struct {
	Key      string
	Priority int64
}

/*
Heap is a binary min-heap of Items with a key index.

A plain min-heap only gives fast access to its minimum. This one also keeps a
key -> array-position table in lockstep with every swap, which buys two extra
operations a plain heap cannot do cheaply:

  - Remove(key) in O(log n) instead of an O(n) scan
  - duplicate suppression on Push, so a key occurs at most once

Ordering between items with equal priority is unspecified.

Heap is NOT safe for concurrent use. Owners guard it with their own lock.
*/
type Heap struct {
	items []Item
	index map[string]int // key -> position in items
}

// New returns an empty heap.
func New() *Heap {
	return &Heap{index: make(map[string]int)}
}

/*
Push inserts an item. If the key is already tracked, its old occurrence is
removed first, so pushing is also how callers reschedule a key under a new
priority. The heap never holds two items for the same key.
*/
func (h *Heap) Push(it Item) {
	if _, ok := h.index[it.Key]; ok {
		h.Remove(it.Key)
	}
	h.items = append(h.items, it)
	h.index[it.Key] = len(h.items) - 1
	h.siftUp(len(h.items) - 1)
}

// Pop removes and returns the minimum item. The second return is false when
// the heap is empty.
func (h *Heap) Pop() (Item, bool) {
	if len(h.items) == 0 {
		return Item{}, false
	}
	min := h.items[0]
	h.swap(0, len(h.items)-1)
	h.items = h.items[:len(h.items)-1]
	delete(h.index, min.Key)
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return min, true
}

// Peek returns the minimum item without removing it.
func (h *Heap) Peek() (Item, bool) {
	if len(h.items) == 0 {
		return Item{}, false
	}
	return h.items[0], true
}

/*
Remove deletes the item with the given key wherever it sits:

 1. look the position up in the index
 2. swap the target with the last element
 3. drop the last element
 4. re-sift the swapped-in element to restore heap order

Returns false if the key is not tracked.
*/
func (h *Heap) Remove(key string) bool {
	i, ok := h.index[key]
	if !ok {
		return false
	}
	last := len(h.items) - 1
	if i != last {
		h.swap(i, last)
	}
	h.items = h.items[:last]
	delete(h.index, key)

	if i < last {
		// The element swapped into position i may violate order in either
		// direction; only one of these moves it.
		h.siftUp(i)
		h.siftDown(i)
	}
	return true
}

// ExtractAll drains the heap in ascending priority order and leaves it empty.
func (h *Heap) ExtractAll() []Item {
	out := make([]Item, 0, len(h.items))
	for {
		it, ok := h.Pop()
		if !ok {
			return out
		}
		out = append(out, it)
	}
}

// Clear drops every item.
func (h *Heap) Clear() {
	h.items = nil
	h.index = make(map[string]int)
}

// Len returns the number of tracked items.
func (h *Heap) Len() int {
	return len(h.items)
}

// Contains reports whether key currently has an occurrence in the heap.
func (h *Heap) Contains(key string) bool {
	_, ok := h.index[key]
	return ok
}

// swap exchanges two positions and keeps the index table in lockstep.
func (h *Heap) swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.index[h.items[i].Key] = i
	h.index[h.items[j].Key] = j
}

func (h *Heap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.items[parent].Priority <= h.items[i].Priority {
			return
		}
		h.swap(i, parent)
		i = parent
	}
}

func (h *Heap) siftDown(i int) {
	n := len(h.items)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && h.items[left].Priority < h.items[smallest].Priority {
			smallest = left
		}
		if right < n && h.items[right].Priority < h.items[smallest].Priority {
			smallest = right
		}
		if smallest == i {
			return
		}
		h.swap(i, smallest)
		i = smallest
	}
}
