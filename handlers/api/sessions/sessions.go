package sessions

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"pixelart-server/core"
	"pixelart-server/editor"
	"pixelart-server/grid"
	pxrender "pixelart-server/render"
)

type (
	// TokenIssuer hands out the bearer token that guards a session.
	TokenIssuer interface {
		Issue(sessionID string) (string, error)
	}

	// CreateSessionRequest optionally starts the session from a draft grid.
	CreateSessionRequest struct {
		Grid *grid.Grid `json:"grid"`
	}

	CreateSessionResponse struct {
		Token string       `json:"token"`
		State editor.State `json:"state"`
	}

	ListSessionsResponse struct {
		Sessions []string `json:"sessions"`
	}

	// UpdatePaletteRequest changes only the fields that are present.
	UpdatePaletteRequest struct {
		Color     *string `json:"color"`
		Tool      *string `json:"tool"`
		BrushSize *int    `json:"brushSize"`
	}

	// PointerRequest carries a pointer position in canvas pixels.
	PointerRequest struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	HistoryResponse struct {
		Moved bool         `json:"moved"`
		State editor.State `json:"state"`
	}

	SaveResponse struct {
		Message   string    `json:"message"`
		ID        string    `json:"id"`
		CreatedAt time.Time `json:"date"`
	}
)

// HandleCreate opens a new editing session, on a blank canvas unless the
// body carries a draft grid
func HandleCreate(reg *editor.Registry, tokens TokenIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			logrus.WithError(err).Debug("Failed to decode session request")
			writeError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		var (
			s   *editor.Session
			err error
		)
		if req.Grid != nil {
			s, err = reg.CreateFrom(*req.Grid)
		} else {
			s, err = reg.Create()
		}
		switch {
		case errors.Is(err, editor.ErrGridMismatch):
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		case errors.Is(err, editor.ErrTooManySessions):
			logrus.WithError(err).Warn("Session limit reached")
			writeError(w, r, http.StatusServiceUnavailable, "Too many sessions, try again later")
			return
		case err != nil:
			logrus.WithError(err).Error("Failed to create session")
			writeError(w, r, http.StatusInternalServerError, "Failed to create session")
			return
		}

		token, err := tokens.Issue(s.ID())
		if err != nil {
			logrus.WithError(err).WithField("session_id", s.ID()).Error("Failed to issue session token")
			_ = reg.Close(s.ID())
			writeError(w, r, http.StatusInternalServerError, "Failed to create session")
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, CreateSessionResponse{Token: token, State: s.State()})
	}
}

// HandleList lists the IDs of live sessions
func HandleList(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, ListSessionsResponse{Sessions: reg.List()})
	}
}

// HandleGet returns the current state of a session
func HandleGet(reg *editor.Registry) http.HandlerFunc {
	return withSession(reg, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		render.JSON(w, r, s.State())
	})
}

// HandleClose discards a session and its history
func HandleClose(reg *editor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionId")
		if err := reg.Close(id); err != nil {
			writeSessionError(w, r, err, id)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleUpdatePalette changes the selected color, tool or brush size.
// Invalid input leaves the palette unchanged.
func HandleUpdatePalette(reg *editor.Registry) http.HandlerFunc {
	return withSession(reg, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		var req UpdatePaletteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithError(err).Debug("Failed to decode palette request")
			writeError(w, r, http.StatusBadRequest, "Invalid request body")
			return
		}

		update := editor.PaletteUpdate{BrushSize: req.BrushSize}
		if req.Color != nil {
			color, err := grid.ParseColor(*req.Color)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			update.Color = &color
		}
		if req.Tool != nil {
			tool, err := grid.ParseTool(*req.Tool)
			if err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			update.Tool = &tool
		}

		render.JSON(w, r, s.UpdatePalette(update))
	})
}

// HandlePointerDown starts a stroke
func HandlePointerDown(reg *editor.Registry) http.HandlerFunc {
	return withSession(reg, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		p, ok := decodePointer(w, r)
		if !ok {
			return
		}
		render.JSON(w, r, s.PointerDown(p.X, p.Y))
	})
}

// HandlePointerMove continues the active stroke, if any
func HandlePointerMove(reg *editor.Registry) http.HandlerFunc {
	return withSession(reg, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		p, ok := decodePointer(w, r)
		if !ok {
			return
		}
		state, _ := s.PointerMove(p.X, p.Y)
		render.JSON(w, r, state)
	})
}

// HandlePointerUp ends the active stroke
func HandlePointerUp(reg *editor.Registry) http.HandlerFunc {
	return withSession(reg, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		render.JSON(w, r, s.PointerUp())
	})
}

// HandlePointerLeave ends the active stroke when the pointer leaves the canvas
func HandlePointerLeave(reg *editor.Registry) http.HandlerFunc {
	return withSession(reg, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		render.JSON(w, r, s.PointerLeave())
	})
}

func HandleUndo(reg *editor.Registry) http.HandlerFunc {
	return withSession(reg, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		state, moved := s.Undo()
		render.JSON(w, r, HistoryResponse{Moved: moved, State: state})
	})
}

func HandleRedo(reg *editor.Registry) http.HandlerFunc {
	return withSession(reg, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		state, moved := s.Redo()
		render.JSON(w, r, HistoryResponse{Moved: moved, State: state})
	})
}

// HandleImage renders the displayed snapshot at the canvas pixel size
func HandleImage(reg *editor.Registry) http.HandlerFunc {
	return withSession(reg, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		format, err := pxrender.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		var buf bytes.Buffer
		if err := pxrender.Encode(&buf, pxrender.Render(s.Current(), s.Config().PixelSize), format); err != nil {
			logrus.WithError(err).WithField("session_id", s.ID()).Error("Failed to render image")
			writeError(w, r, http.StatusInternalServerError, "Failed to render image")
			return
		}
		writeImage(w, buf.Bytes(), format)
	})
}

// HandleDownload exports the displayed snapshot as a file attachment.
// scale enlarges the canvas image by an integer factor.
func HandleDownload(reg *editor.Registry) http.HandlerFunc {
	return withSession(reg, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		query := r.URL.Query()
		format, err := pxrender.ParseFormat(query.Get("format"))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		scale := 1
		if v := query.Get("scale"); v != "" {
			scale, err = strconv.Atoi(v)
			if err != nil || scale < 1 {
				writeError(w, r, http.StatusBadRequest, "scale must be a positive integer")
				return
			}
		}

		img := pxrender.Scale(pxrender.Render(s.Current(), s.Config().PixelSize), scale)
		var buf bytes.Buffer
		if err := pxrender.Encode(&buf, img, format); err != nil {
			logrus.WithError(err).WithField("session_id", s.ID()).Error("Failed to export image")
			writeError(w, r, http.StatusInternalServerError, "Failed to export image")
			return
		}

		filename := pxrender.DownloadFilename(time.Now(), format)
		logrus.WithFields(logrus.Fields{
			"session_id": s.ID(),
			"filename":   filename,
			"bytes":      buf.Len(),
		}).Info("Download started!")

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		w.Header().Set("X-Message", "Download started!")
		writeImage(w, buf.Bytes(), format)
	})
}

// HandleSave stores the displayed snapshot as a PNG artwork. A store
// failure is reported without touching the session.
func HandleSave(reg *editor.Registry, store core.ArtworkStore) http.HandlerFunc {
	return withSession(reg, func(w http.ResponseWriter, r *http.Request, s *editor.Session) {
		log := logrus.WithField("session_id", s.ID())

		var buf bytes.Buffer
		if err := pxrender.Encode(&buf, pxrender.Render(s.Current(), s.Config().PixelSize), pxrender.PNG); err != nil {
			log.WithError(err).Error("Failed to render artwork")
			writeError(w, r, http.StatusInternalServerError, "Failed to save artwork")
			return
		}

		artwork, err := store.Save(r.Context(), buf.Bytes(), pxrender.PNG.ContentType)
		if err != nil {
			log.WithError(err).Error("Failed to save artwork")
			writeError(w, r, http.StatusInternalServerError, "Failed to save artwork")
			return
		}

		log.WithField("artwork_id", artwork.ID).Info("Artwork saved!")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, SaveResponse{Message: "Artwork saved!", ID: artwork.ID, CreatedAt: artwork.CreatedAt})
	})
}

func withSession(reg *editor.Registry, fn func(http.ResponseWriter, *http.Request, *editor.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionId")
		s, err := reg.Get(id)
		if err != nil {
			writeSessionError(w, r, err, id)
			return
		}
		fn(w, r, s)
	}
}

func decodePointer(w http.ResponseWriter, r *http.Request) (PointerRequest, bool) {
	var p PointerRequest
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		logrus.WithError(err).Debug("Failed to decode pointer request")
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return p, false
	}
	return p, true
}

func writeImage(w http.ResponseWriter, data []byte, format pxrender.Format) {
	w.Header().Set("Content-Type", format.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		logrus.WithError(err).Warn("Failed to write image")
	}
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error, id string) {
	if errors.Is(err, editor.ErrSessionNotFound) {
		logrus.WithField("session_id", id).Debug("Session not found")
		writeError(w, r, http.StatusNotFound, "Session not found")
		return
	}
	logrus.WithError(err).WithField("session_id", id).Error("Session lookup failed")
	writeError(w, r, http.StatusInternalServerError, "Session lookup failed")
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}
