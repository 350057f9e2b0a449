// Package editor wires the grid and its history into an editing session
// driven by pointer events. A session is the only place that records
// snapshots; every event on it is serialized.
package editor

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pixelart-server/core"
	"pixelart-server/grid"
	"pixelart-server/history"
)

// DefaultColor is the selected color of a new session.
const DefaultColor = grid.Black

type (
	// Notifier is told whenever the displayed snapshot of a session changes.
	Notifier interface {
		GridChanged(state State)
	}

	// State is a point-in-time view of a session.
	State struct {
		ID         string     `json:"id"`
		Cols       int        `json:"cols"`
		Rows       int        `json:"rows"`
		PixelSize  int        `json:"pixelSize"`
		Background grid.Color `json:"background"`
		Grid       grid.Grid  `json:"grid"`
		Cursor     int        `json:"cursor"`
		Length     int        `json:"length"`
		CanUndo    bool       `json:"canUndo"`
		CanRedo    bool       `json:"canRedo"`
		Color      grid.Color `json:"color"`
		Tool       grid.Tool  `json:"tool"`
		BrushSize  int        `json:"brushSize"`
		Drawing    bool       `json:"drawing"`
		// Version increases every time the displayed grid changes.
		Version   uint64    `json:"version"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// PaletteUpdate changes the fields that are set and leaves the rest.
	PaletteUpdate struct {
		Color     *grid.Color
		Tool      *grid.Tool
		BrushSize *int
	}

	Session struct {
		mu sync.Mutex

		id        string
		config    core.CanvasConfig
		history   *history.History
		color     grid.Color
		tool      grid.Tool
		brushSize int
		drawing   bool
		version   uint64
		createdAt time.Time
		updatedAt time.Time

		notifier Notifier
		// notifyMu orders deliveries; notified is the last version delivered.
		notifyMu sync.Mutex
		notified uint64
	}
)

// NewSession creates a session with a blank canvas as its only snapshot.
func NewSession(id string, cfg core.CanvasConfig, notifier Notifier) *Session {
	cells := cfg.Cells()
	return newSession(id, cfg, grid.NewBlank(cells, cells, cfg.Background), notifier)
}

func newSession(id string, cfg core.CanvasConfig, initial grid.Grid, notifier Notifier) *Session {
	now := time.Now()
	return &Session{
		id:        id,
		config:    cfg,
		history:   history.New(initial),
		color:     DefaultColor,
		tool:      grid.ToolBrush,
		brushSize: grid.MinBrushSize,
		createdAt: now,
		updatedAt: now,
		notifier:  notifier,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Config() core.CanvasConfig { return s.config }

// LastActive returns when the session last handled an event.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// PointerDown starts a stroke and stamps the brush at (x, y), given in
// canvas pixels.
func (s *Session) PointerDown(x, y float64) State {
	s.mu.Lock()
	s.drawing = true
	s.stampLocked(x, y)
	state := s.stateLocked()
	s.mu.Unlock()

	s.notify(state)
	return state
}

// PointerMove stamps the brush at (x, y) while a stroke is active. Moves
// outside a stroke are ignored. Every stamped sample becomes its own
// history entry.
func (s *Session) PointerMove(x, y float64) (State, bool) {
	s.mu.Lock()
	if !s.drawing {
		state := s.stateLocked()
		s.mu.Unlock()
		return state, false
	}
	s.stampLocked(x, y)
	state := s.stateLocked()
	s.mu.Unlock()

	s.notify(state)
	return state, true
}

// PointerUp ends the active stroke. Snapshots recorded during the stroke
// stay in history.
func (s *Session) PointerUp() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drawing = false
	s.updatedAt = time.Now()
	return s.stateLocked()
}

// PointerLeave ends the stroke when the pointer leaves the canvas.
func (s *Session) PointerLeave() State {
	return s.PointerUp()
}

func (s *Session) Undo() (State, bool) {
	s.mu.Lock()
	moved := s.history.Undo()
	if moved {
		s.version++
	}
	s.updatedAt = time.Now()
	state := s.stateLocked()
	s.mu.Unlock()

	if moved {
		s.notify(state)
	}
	return state, moved
}

func (s *Session) Redo() (State, bool) {
	s.mu.Lock()
	moved := s.history.Redo()
	if moved {
		s.version++
	}
	s.updatedAt = time.Now()
	state := s.stateLocked()
	s.mu.Unlock()

	if moved {
		s.notify(state)
	}
	return state, moved
}

// UpdatePalette applies every set field of u at once, so no stroke sees
// a partly applied change. The brush size is clamped into range.
func (s *Session) UpdatePalette(u PaletteUpdate) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.Color != nil {
		s.color = *u.Color
	}
	if u.Tool != nil {
		s.tool = *u.Tool
	}
	if u.BrushSize != nil {
		s.brushSize = grid.ClampBrushSize(*u.BrushSize)
	}
	s.updatedAt = time.Now()
	return s.stateLocked()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Current returns the displayed grid.
func (s *Session) Current() grid.Grid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Current()
}

func (s *Session) stampLocked(x, y float64) {
	cx := grid.CellAt(x, s.config.PixelSize)
	cy := grid.CellAt(y, s.config.PixelSize)
	paint := grid.ResolveColor(s.tool, s.color, s.config.Background)

	next := grid.ApplyStroke(s.history.Current(), cx, cy, s.brushSize, paint)
	s.history.Record(next)
	s.version++
	s.updatedAt = time.Now()

	logrus.WithFields(logrus.Fields{
		"session_id": s.id,
		"cell_x":     cx,
		"cell_y":     cy,
		"tool":       s.tool,
		"brush_size": s.brushSize,
		"cursor":     s.history.Cursor(),
	}).Debug("Stroke recorded")
}

func (s *Session) stateLocked() State {
	current := s.history.Current()
	return State{
		ID:         s.id,
		Cols:       current.Cols(),
		Rows:       current.Rows(),
		PixelSize:  s.config.PixelSize,
		Background: s.config.Background,
		Grid:       current,
		Cursor:     s.history.Cursor(),
		Length:     s.history.Len(),
		CanUndo:    s.history.CanUndo(),
		CanRedo:    s.history.CanRedo(),
		Color:      s.color,
		Tool:       s.tool,
		BrushSize:  s.brushSize,
		Drawing:    s.drawing,
		Version:    s.version,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
}

// notify delivers state unless a newer version was delivered already.
// Callers race for notifyMu after releasing mu, so the newest state is
// always the last one a Notifier sees.
func (s *Session) notify(state State) {
	if s.notifier == nil {
		return
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	if state.Version <= s.notified {
		return
	}
	s.notified = state.Version
	s.notifier.GridChanged(state)
}
