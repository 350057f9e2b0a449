// Package history keeps the linear sequence of grid snapshots behind
// undo and redo. Recording after an undo drops the redo tail; undo and
// redo past either end are silent no-ops.
package history

import "pixelart-server/grid"

// History owns the snapshot sequence and the cursor. Snapshot zero is the
// initial grid and is never removed.
type History struct {
	snapshots []grid.Grid
	cursor    int
}

// New starts a history whose only snapshot is initial.
func New(initial grid.Grid) *History {
	return &History{snapshots: []grid.Grid{initial}}
}

// Record drops every snapshot after the cursor, appends g and moves the
// cursor onto it.
func (h *History) Record(g grid.Grid) {
	clear(h.snapshots[h.cursor+1:])
	h.snapshots = append(h.snapshots[:h.cursor+1], g)
	h.cursor = len(h.snapshots) - 1
}

// Undo steps the cursor back. It reports whether the cursor moved.
func (h *History) Undo() bool {
	if !h.CanUndo() {
		return false
	}
	h.cursor--
	return true
}

// Redo steps the cursor forward. It reports whether the cursor moved.
func (h *History) Redo() bool {
	if !h.CanRedo() {
		return false
	}
	h.cursor++
	return true
}

// Current returns the displayed snapshot.
func (h *History) Current() grid.Grid {
	return h.snapshots[h.cursor]
}

func (h *History) CanUndo() bool { return h.cursor > 0 }

func (h *History) CanRedo() bool { return h.cursor < len(h.snapshots)-1 }

func (h *History) Cursor() int { return h.cursor }

func (h *History) Len() int { return len(h.snapshots) }
