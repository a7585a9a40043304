// Package dataset holds partitioned record collections and reads and writes
// them as files.
package dataset

// Partition is one independently processed slice of a collection.
type Partition[T any] struct {
	Index   int
	Records []T
}

// Collection is an ordered set of partitions.
type Collection[T any] struct {
	parts []Partition[T]
}

// FromRecords splits records into n contiguous partitions of near-equal
// size. Some partitions are empty when there are fewer records than n.
func FromRecords[T any](records []T, n int) *Collection[T] {
	if n < 1 {
		n = 1
	}
	parts := make([]Partition[T], n)
	for i := range parts {
		lo := i * len(records) / n
		hi := (i + 1) * len(records) / n
		parts[i] = Partition[T]{Index: i, Records: records[lo:hi:hi]}
	}
	return &Collection[T]{parts: parts}
}

// FromPartitions wraps already partitioned records. Indexes are reassigned
// to match positions.
func FromPartitions[T any](parts []Partition[T]) *Collection[T] {
	out := make([]Partition[T], len(parts))
	for i, p := range parts {
		out[i] = Partition[T]{Index: i, Records: p.Records}
	}
	return &Collection[T]{parts: out}
}

// Partitions returns the partitions in order.
func (c *Collection[T]) Partitions() []Partition[T] {
	return append([]Partition[T](nil), c.parts...)
}

// NumPartitions returns the partition count.
func (c *Collection[T]) NumPartitions() int { return len(c.parts) }

// Records concatenates every partition in order.
func (c *Collection[T]) Records() []T {
	out := make([]T, 0, c.Count())
	for _, p := range c.parts {
		out = append(out, p.Records...)
	}
	return out
}

// Count returns the total number of records.
func (c *Collection[T]) Count() int {
	n := 0
	for _, p := range c.parts {
		n += len(p.Records)
	}
	return n
}

// Repartition redistributes the records over n partitions.
func (c *Collection[T]) Repartition(n int) *Collection[T] {
	return FromRecords(c.Records(), n)
}
