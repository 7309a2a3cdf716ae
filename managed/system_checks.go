// Checks for the managed source. The validator discovers every receiver-less
// Test* function here and runs it against each candidate modification: a
// check panics on failure and returns normally on success.
package managed

import "fmt"

func TestQueueOrder() {
	q := &TaskQueue{}
	q.Push("first")
	q.Push("second")
	if got := q.Pop(); got != "first" {
		panic(fmt.Sprintf("expected first, got %q", got))
	}
	if got := q.Pop(); got != "second" {
		panic(fmt.Sprintf("expected second, got %q", got))
	}
	if q.Pop() != "" {
		panic("empty queue must pop an empty string")
	}
}

func TestQueueSize() {
	q := &TaskQueue{}
	if q.Size() != 0 {
		panic("new queue must be empty")
	}
	q.Push("a")
	if q.Size() != 1 {
		panic("size must track pushes")
	}
}

func TestWordIndexTop() {
	x := &WordIndex{}
	x.Add("the quick fox. The lazy dog, the end")
	top := x.Top(1)
	if len(top) != 1 || top[0] != "the" {
		panic(fmt.Sprintf("expected [the], got %v", top))
	}
}

func TestWordIndexDescribe() {
	x := &WordIndex{}
	x.Add("alpha beta alpha")
	if x.Describe() != "2 distinct words" {
		panic("describe must count distinct words")
	}
}
