package analysis

import "sort"

// RankedEntry is one row of a sorted frequency table.
type RankedEntry struct {
	Name  string
	Count int
}

// counter is a frequency table that remembers the order in which keys were
// first seen, so ranking ties resolve to the earlier key.
type counter struct {
	counts map[string]int
	order  map[string]int
}

func newCounter() *counter {
	return &counter{
		counts: make(map[string]int),
		order:  make(map[string]int),
	}
}

func (c *counter) add(key string) {
	if _, seen := c.counts[key]; !seen {
		c.order[key] = len(c.order)
	}
	c.counts[key]++
}

// ranked returns the full table sorted by count descending, first-seen
// order breaking ties.
func (c *counter) ranked() []RankedEntry {
	out := make([]RankedEntry, 0, len(c.counts))
	for name, count := range c.counts {
		out = append(out, RankedEntry{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return c.order[out[i].Name] < c.order[out[j].Name]
	})
	return out
}

// top returns at most n entries of the ranked table.
func (c *counter) top(n int) []RankedEntry {
	r := c.ranked()
	if len(r) > n {
		r = r[:n]
	}
	return r
}
