// Package diff computes line-level differences between source versions using
// the sergi/go-diff engine. Two consumers: the change ledger renders unified
// diff artifacts, and the security gate restricts its scan to added lines.
package diff

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// LineType classifies a diff line.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

// Line is a single line in the diff.
type Line struct {
	OldNum  int // 1-based, -1 for added lines
	NewNum  int // 1-based, -1 for removed lines
	Content string
	Type    LineType
}

// Hunk is a contiguous group of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// SourceDiff captures the change between two versions of the managed source.
type SourceDiff struct {
	OldLabel string
	NewLabel string
	Hunks    []Hunk
}

// Engine computes diffs, caching results for identical input pairs. Repeated
// cycles often compare identical sources (rejected modifications), so the
// cache pays for itself quickly.
type Engine struct {
	dmp   *diffmatchpatch.DiffMatchPatch
	cache sync.Map
}

type cacheKey struct {
	oldHash uint64
	newHash uint64
}

// NewEngine creates a diff engine tuned for source text.
func NewEngine() *Engine {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0 // accuracy over speed
	return &Engine{dmp: dmp}
}

// DefaultEngine is a shared engine for general use.
var DefaultEngine = NewEngine()

// Compute diffs oldContent against newContent at line granularity.
func (e *Engine) Compute(oldLabel, newLabel, oldContent, newContent string) *SourceDiff {
	key := cacheKey{fnv1a(oldContent), fnv1a(newContent)}
	if cached, ok := e.cache.Load(key); ok {
		if sd, ok := cached.(*SourceDiff); ok {
			clone := *sd
			clone.OldLabel = oldLabel
			clone.NewLabel = newLabel
			return &clone
		}
	}

	// Line-level reduction avoids newline boundary artifacts when converting
	// character diffs back to line operations.
	a, b, lineArray := e.dmp.DiffLinesToChars(oldContent, newContent)
	diffs := e.dmp.DiffMain(a, b, false)
	diffs = e.dmp.DiffCleanupSemantic(diffs)
	diffs = e.dmp.DiffCharsToLines(diffs, lineArray)

	sd := &SourceDiff{
		OldLabel: oldLabel,
		NewLabel: newLabel,
		Hunks:    groupIntoHunks(toOperations(diffs), 3),
	}
	e.cache.Store(key, sd)
	return sd
}

// Compute is a convenience function using the default engine.
func Compute(oldLabel, newLabel, oldContent, newContent string) *SourceDiff {
	return DefaultEngine.Compute(oldLabel, newLabel, oldContent, newContent)
}

// AddedLines returns the content of every line present in the new version but
// not the old one. Empty when the versions are identical.
func (d *SourceDiff) AddedLines() []string {
	var added []string
	for _, h := range d.Hunks {
		for _, l := range h.Lines {
			if l.Type == LineAdded {
				added = append(added, l.Content)
			}
		}
	}
	return added
}

// HasChanges reports whether the diff contains any added or removed line.
func (d *SourceDiff) HasChanges() bool {
	for _, h := range d.Hunks {
		for _, l := range h.Lines {
			if l.Type != LineContext {
				return true
			}
		}
	}
	return false
}

// Unified renders the diff in unified format for the ledger's per-cycle
// artifact files.
func (d *SourceDiff) Unified() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n", d.OldLabel)
	fmt.Fprintf(&sb, "+++ %s\n", d.NewLabel)
	for _, h := range d.Hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			switch l.Type {
			case LineAdded:
				sb.WriteString("+")
			case LineRemoved:
				sb.WriteString("-")
			default:
				sb.WriteString(" ")
			}
			sb.WriteString(l.Content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// operation is one line-level op before hunk grouping.
type operation struct {
	typ     LineType
	oldLine int
	newLine int
	content string
}

func toOperations(diffs []diffmatchpatch.Diff) []operation {
	ops := make([]operation, 0)
	oldLine, newLine := 0, 0

	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		if len(lines) == 1 && lines[0] == "" && d.Type != diffmatchpatch.DiffEqual {
			continue
		}
		// Split leaves a trailing empty element for newline-terminated text.
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}

		for _, line := range lines {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				ops = append(ops, operation{LineContext, oldLine, newLine, line})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				ops = append(ops, operation{LineRemoved, oldLine, -1, line})
				oldLine++
			case diffmatchpatch.DiffInsert:
				ops = append(ops, operation{LineAdded, -1, newLine, line})
				newLine++
			}
		}
	}
	return ops
}

func groupIntoHunks(ops []operation, contextLines int) []Hunk {
	if len(ops) == 0 {
		return nil
	}

	hunks := make([]Hunk, 0)
	var cur *Hunk
	lastChange := -1

	for i, op := range ops {
		if op.typ != LineContext {
			if cur == nil {
				cur = &Hunk{Lines: make([]Line, 0)}

				start := i - contextLines
				if start < 0 {
					start = 0
				}
				for j := start; j < i; j++ {
					if ops[j].typ == LineContext {
						cur.Lines = append(cur.Lines, Line{
							OldNum:  ops[j].oldLine + 1,
							NewNum:  ops[j].newLine + 1,
							Content: ops[j].content,
							Type:    LineContext,
						})
					}
				}
				cur.OldStart = ops[start].oldLine + 1
				cur.NewStart = ops[start].newLine + 1
				if ops[start].oldLine < 0 {
					cur.OldStart = 0
				}
				if ops[start].newLine < 0 {
					cur.NewStart = 0
				}
			}
			lastChange = i
		}

		if cur == nil {
			continue
		}

		cur.Lines = append(cur.Lines, Line{
			OldNum:  op.oldLine + 1,
			NewNum:  op.newLine + 1,
			Content: op.content,
			Type:    op.typ,
		})

		// Close the hunk once trailing context exceeds the window.
		if op.typ == LineContext && i-lastChange > contextLines {
			trimTo := len(cur.Lines) - (i - lastChange - contextLines)
			if trimTo > 0 && trimTo < len(cur.Lines) {
				cur.Lines = cur.Lines[:trimTo]
			}
			finishHunk(cur)
			hunks = append(hunks, *cur)
			cur = nil
		}
	}

	if cur != nil && len(cur.Lines) > 0 {
		finishHunk(cur)
		hunks = append(hunks, *cur)
	}
	return hunks
}

func finishHunk(h *Hunk) {
	for _, l := range h.Lines {
		if l.Type == LineRemoved || l.Type == LineContext {
			h.OldCount++
		}
		if l.Type == LineAdded || l.Type == LineContext {
			h.NewCount++
		}
	}
}

// fnv1a computes the cache key hash.
func fnv1a(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}
