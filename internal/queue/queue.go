// Package queue provides a bounded top-K candidate heap for nearest-neighbor
// search.
package queue

// Item is a search candidate. Candidates order ascending by distance with
// ties broken by record id ascending, so repeated searches over the same
// corpus return the same sequence.
type Item struct {
	ID       string
	Distance float32
}

// ranksAfter reports whether a sorts after b in the final result ordering.
func ranksAfter(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.ID > b.ID
}

// TopK keeps the k best candidates seen so far.
// It is a max-heap keyed on ranksAfter: the root is the current worst
// candidate, so a better one replaces it in O(log k).
// Value-based storage, no allocations beyond the backing slice.
type TopK struct {
	k     int
	items []Item
}

// NewTopK creates a bounded candidate heap holding at most k items.
func NewTopK(k int) *TopK {
	return &TopK{
		k:     k,
		items: make([]Item, 0, k),
	}
}

// Len returns the number of candidates currently held.
func (q *TopK) Len() int { return len(q.items) }

// Push offers a candidate. It is kept if fewer than k candidates have been
// seen or if it ranks before the current worst.
func (q *TopK) Push(it Item) {
	if len(q.items) < q.k {
		q.items = append(q.items, it)
		q.siftUp(len(q.items) - 1)
		return
	}
	if ranksAfter(q.items[0], it) {
		q.items[0] = it
		q.siftDown(0)
	}
}

// Sorted drains the heap and returns candidates ordered ascending by
// distance, ties by id. The queue is empty afterwards.
func (q *TopK) Sorted() []Item {
	out := make([]Item, len(q.items))
	for i := len(q.items) - 1; i >= 0; i-- {
		out[i] = q.pop()
	}
	return out
}

func (q *TopK) pop() Item {
	n := len(q.items)
	root := q.items[0]
	last := q.items[n-1]
	q.items = q.items[:n-1]
	if n-1 > 0 {
		q.items[0] = last
		q.siftDown(0)
	}
	return root
}

func (q *TopK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !ranksAfter(q.items[i], q.items[p]) {
			return
		}
		q.items[i], q.items[p] = q.items[p], q.items[i]
		i = p
	}
}

func (q *TopK) siftDown(i int) {
	n := len(q.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		worst := l
		if r := l + 1; r < n && ranksAfter(q.items[r], q.items[l]) {
			worst = r
		}
		if !ranksAfter(q.items[worst], q.items[i]) {
			return
		}
		q.items[i], q.items[worst] = q.items[worst], q.items[i]
		i = worst
	}
}
