// Package managed is the source the evolution engine operates on. It is
// data, not part of the build: the engine reads, rewrites, and validates this
// file as text. Keep it self-contained and free of imports beyond the
// standard library.
package managed

import (
	"fmt"
	"sort"
	"strings"
)

var components = map[string]interface{}{}

func registerComponent(id string, c interface{}) {
	components[id] = c
}

// TaskQueue holds pending work items in arrival order.
type TaskQueue struct {
	items []string
}

// Push appends a work item.
func (q *TaskQueue) Push(item string) {
	q.items = append(q.items, item)
}

// Pop removes and returns the oldest item, or an empty string when the
// queue is empty.
func (q *TaskQueue) Pop() string {
	if len(q.items) == 0 {
		return ""
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item
}

// Size reports how many items are pending.
func (q *TaskQueue) Size() int {
	return len(q.items)
}

// WordIndex counts word occurrences across added documents.
type WordIndex struct {
	counts map[string]int
}

// Add tokenizes a document and folds it into the index.
func (x *WordIndex) Add(document string) {
	if x.counts == nil {
		x.counts = map[string]int{}
	}
	for _, word := range strings.Fields(strings.ToLower(document)) {
		x.counts[strings.Trim(word, ".,;:!?")]++
	}
}

// Top returns the n most frequent words, ties broken alphabetically.
func (x *WordIndex) Top(n int) []string {
	words := make([]string, 0, len(x.counts))
	for w := range x.counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if x.counts[words[i]] != x.counts[words[j]] {
			return x.counts[words[i]] > x.counts[words[j]]
		}
		return words[i] < words[j]
	})
	if n > len(words) {
		n = len(words)
	}
	return words[:n]
}

// Describe summarizes the index.
func (x *WordIndex) Describe() string {
	return fmt.Sprintf("%d distinct words", len(x.counts))
}

func setup() {
	// metamorph:register
	registerComponent("task_queue", &TaskQueue{})
	registerComponent("word_index", &WordIndex{})
}
