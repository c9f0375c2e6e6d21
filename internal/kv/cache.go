package kv

import "sync"

// node is a doubly linked list node holding one cached value.
type node struct {
	key  string
	val  []byte
	prev *node
	next *node
}

// cache is a thread-safe LRU bounded by the total size of its values in
// bytes rather than by entry count. A single value larger than the budget is
// never cached.
type cache struct {
	mu      sync.Mutex
	maxSize int
	size    int
	items   map[string]*node
	head    *node // most recently used (sentinel)
	tail    *node // least recently used (sentinel)
}

func newCache(maxSize int) *cache {
	head := &node{}
	tail := &node{}
	head.next = tail
	tail.prev = head
	return &cache{
		maxSize: maxSize,
		items:   make(map[string]*node),
		head:    head,
		tail:    tail,
	}
}

// get returns a copy of the cached value so callers cannot mutate the cache.
func (c *cache) get(key string) ([]byte, bool) {
	if c == nil || c.maxSize <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(n)
	return append([]byte(nil), n.val...), true
}

// put stores a copy of val, evicting least recently used values until the
// byte budget is respected.
func (c *cache) put(key string, val []byte) {
	if c == nil || c.maxSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[key]; ok {
		c.unlink(n)
	}
	if len(val) > c.maxSize {
		return
	}

	n := &node{key: key, val: append([]byte(nil), val...)}
	c.items[key] = n
	c.size += len(n.val)
	c.pushFront(n)

	for c.size > c.maxSize {
		c.unlink(c.tail.prev)
	}
}

func (c *cache) delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, ok := c.items[key]; ok {
		c.unlink(n)
	}
}

func (c *cache) clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head.next = c.tail
	c.tail.prev = c.head
	c.items = make(map[string]*node)
	c.size = 0
}

// --- internal linked list operations (caller must hold lock) ---

// unlink detaches n from the list and the index.
func (c *cache) unlink(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
	delete(c.items, n.key)
	c.size -= len(n.val)
}

func (c *cache) pushFront(n *node) {
	n.next = c.head.next
	n.prev = c.head
	c.head.next.prev = n
	c.head.next = n
}

func (c *cache) moveToFront(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	c.pushFront(n)
}
