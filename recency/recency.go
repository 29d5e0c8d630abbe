// Package recency tracks usage order for LRU eviction.
package recency

// Node represents ONE key inside the recency order. The cache allocates one
// node per live entry and keeps its own key -> node map, so node lookup is
// O(1) and the list itself never searches.
type Node struct {
	// key is the cache key this node represents
	key string

	// prev points toward the most recently used end
	prev *Node

	// next points toward the least recently used end
	next *Node
}

// NewNode returns an unlinked node for key.
func NewNode(key string) *Node {
	return &Node{key: key}
}

// Key returns the cache key this node stands for.
func (n *Node) Key() string {
	return n.key
}

/*
List keeps keys ordered from most to least recently used.

head and tail are permanent sentinels: they never carry a key and are never
unlinked, so every real node always has a non-nil neighbor on both sides and
link surgery needs no nil checks or head/tail special cases.

	head <-> MRU <-> ... <-> LRU <-> tail

List is NOT safe for concurrent use. Owners guard it with their own lock.
*/
type List struct {
	head *Node
	tail *Node
	size int
}

// New returns an empty list holding only its sentinels.
func New() *List {
	l := &List{head: &Node{}, tail: &Node{}}
	l.head.next = l.tail
	l.tail.prev = l.head
	return l
}

// AddToHead links n directly after the head sentinel, marking it the most
// recently used. n must not already be linked.
func (l *List) AddToHead(n *Node) {
	n.prev = l.head
	n.next = l.head.next
	l.head.next.prev = n
	l.head.next = n
	l.size++
}

// Remove unlinks n from the list. Both neighbors always exist thanks to the
// sentinels. n must currently be linked.
func (l *List) Remove(n *Node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
	l.size--
}

// MoveToHead re-marks an already linked node as most recently used.
func (l *List) MoveToHead(n *Node) {
	l.Remove(n)
	l.AddToHead(n)
}

// RemoveTail unlinks and returns the least recently used node, or nil when
// the list is empty.
func (l *List) RemoveTail() *Node {
	n := l.tail.prev
	if n == l.head {
		return nil
	}
	l.Remove(n)
	return n
}

// Len returns the number of linked nodes, sentinels excluded.
func (l *List) Len() int {
	return l.size
}

// Clear unlinks everything, leaving only the sentinels.
func (l *List) Clear() {
	l.head.next = l.tail
	l.tail.prev = l.head
	l.size = 0
}

// Keys returns the keys from most to least recently used. Intended for
// diagnostics and tests.
func (l *List) Keys() []string {
	out := make([]string, 0, l.size)
	for n := l.head.next; n != l.tail; n = n.next {
		out = append(out, n.key)
	}
	return out
}
