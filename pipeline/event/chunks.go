package event

import "sync/atomic"

// chunk is one immutable, ref-counted node in a Chunks rope. Once
// constructed its bytes are never mutated; splitting or cloning only ever
// adjusts refs or slices the byte view.
type chunk struct {
	refs atomic.Int32
	b    []byte
	next *chunk
	prev *chunk
}

func newChunk(b []byte) *chunk {
	c := &chunk{b: b}
	c.refs.Store(1)
	return c
}

func (c *chunk) retain() *chunk {
	c.refs.Add(1)
	return c
}

func (c *chunk) release() {
	if c.refs.Add(-1) == 0 {
		c.next = nil
		c.prev = nil
	}
}

// Chunks is a rope of ref-counted byte chunks: pushing and shifting never
// copy chunk payloads. The one chunk straddling a Shift cut point is
// split into two views of the same bytes.
type Chunks struct {
	head *chunk
	tail *chunk
	len  int
}

// NewChunks wraps a single byte slice as a one-node rope. The slice is
// referenced, not copied.
func NewChunks(b []byte) *Chunks {
	if len(b) == 0 {
		return &Chunks{}
	}
	c := newChunk(b)
	return &Chunks{head: c, tail: c, len: len(b)}
}

// Len returns the total byte length across all chunks.
func (c *Chunks) Len() int {
	if c == nil {
		return 0
	}
	return c.len
}

// Push appends other to the end of c, taking ownership of other's chunk
// list. other must not be used again after this call. O(1).
func (c *Chunks) Push(other *Chunks) {
	if other == nil || other.head == nil {
		return
	}
	if c.head == nil {
		c.head, c.tail, c.len = other.head, other.tail, other.len
		return
	}
	c.tail.next = other.head
	other.head.prev = c.tail
	c.tail = other.tail
	c.len += other.len
}

// PushBytes appends a byte slice as a new chunk. O(1).
func (c *Chunks) PushBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	c.Push(NewChunks(b))
}

// Clone returns a new rope sharing the same underlying chunk nodes, each
// with its refcount incremented. O(nodes).
func (c *Chunks) Clone() *Chunks {
	if c == nil || c.head == nil {
		return &Chunks{}
	}
	for n := c.head; n != nil; n = n.next {
		n.retain()
	}
	return &Chunks{head: c.head, tail: c.tail, len: c.len}
}

// Shift removes and returns the first n bytes as a new rope, leaving the
// remainder in c. Only the chunk straddling the cut point (if any) is
// split; every other chunk is handed over by reference.
func (c *Chunks) Shift(n int) *Chunks {
	if c == nil || n <= 0 || c.head == nil {
		return &Chunks{}
	}
	if n >= c.len {
		out := &Chunks{head: c.head, tail: c.tail, len: c.len}
		c.head, c.tail, c.len = nil, nil, 0
		return out
	}

	out := &Chunks{}
	remaining := n
	node := c.head
	for node != nil && remaining > 0 {
		if remaining >= len(node.b) {
			next := node.next
			remaining -= len(node.b)
			node.prev = nil
			out.pushNode(node)
			node = next
			continue
		}

		// split node: [0:remaining) goes to out, [remaining:) stays.
		head := newChunk(node.b[:remaining:remaining])
		tail := newChunk(node.b[remaining:])
		node.release()

		out.pushNode(head)

		tail.next = node.next
		if node.next != nil {
			node.next.prev = tail
		}
		node = tail
		remaining = 0
	}

	c.head = node
	if c.head != nil {
		c.head.prev = nil
	} else {
		c.tail = nil
	}
	c.len -= n
	out.len = n
	return out
}

func (c *Chunks) pushNode(n *chunk) {
	n.next = nil
	if c.head == nil {
		c.head = n
		c.tail = n
		return
	}
	n.prev = c.tail
	c.tail.next = n
	c.tail = n
}

// Iterate calls fn with each chunk's bytes in order, stopping early if fn
// returns false.
func (c *Chunks) Iterate(fn func([]byte) bool) {
	if c == nil {
		return
	}
	for n := c.head; n != nil; n = n.next {
		if !fn(n.b) {
			return
		}
	}
}

// Bytes flattens the rope into a single contiguous slice. It always
// copies; prefer Iterate on the hot path.
func (c *Chunks) Bytes() []byte {
	if c == nil || c.len == 0 {
		return nil
	}
	out := make([]byte, 0, c.len)
	c.Iterate(func(b []byte) bool {
		out = append(out, b...)
		return true
	})
	return out
}

// Release drops this rope's reference to every chunk it holds. After
// Release, c must not be used.
func (c *Chunks) Release() {
	if c == nil {
		return
	}
	for n := c.head; n != nil; {
		next := n.next
		n.release()
		n = next
	}
	c.head, c.tail, c.len = nil, nil, 0
}
