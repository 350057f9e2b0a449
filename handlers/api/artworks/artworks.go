package artworks

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"pixelart-server/core"
)

type (
	// ArtworkResponse is the gallery view of an artwork.
	ArtworkResponse struct {
		ID          string    `json:"id"`
		DataURL     string    `json:"dataUrl"`
		ContentType string    `json:"contentType"`
		CreatedAt   time.Time `json:"date"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}
)

func NewArtworkResponse(a *core.Artwork) ArtworkResponse {
	return ArtworkResponse{
		ID:          a.ID,
		DataURL:     "data:" + a.ContentType + ";base64," + base64.StdEncoding.EncodeToString(a.Image),
		ContentType: a.ContentType,
		CreatedAt:   a.CreatedAt,
	}
}

// HandleList lists saved artworks, newest first
func HandleList(store core.ArtworkStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		artworks, err := store.List(r.Context())
		if err != nil {
			logrus.WithError(err).Error("Failed to list artworks")
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, map[string]string{"error": "Failed to list artworks"})
			return
		}

		response := make([]ArtworkResponse, 0, len(artworks))
		for _, a := range artworks {
			response = append(response, NewArtworkResponse(a))
		}
		render.JSON(w, r, response)
	}
}

// HandleGetImage serves the raw image of one artwork
func HandleGetImage(store core.ArtworkStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "artworkId")

		artwork, err := store.Get(r.Context(), id)
		if err != nil {
			writeStoreError(w, r, err, id, "Failed to get artwork")
			return
		}

		w.Header().Set("Content-Type", artwork.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(artwork.Image)))
		if _, err := w.Write(artwork.Image); err != nil {
			logrus.WithError(err).WithField("artwork_id", id).Warn("Failed to write artwork image")
		}
	}
}

// HandleDelete removes an artwork from the gallery
func HandleDelete(store core.ArtworkStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "artworkId")

		if err := store.Delete(r.Context(), id); err != nil {
			writeStoreError(w, r, err, id, "Failed to delete artwork")
			return
		}

		render.JSON(w, r, MessageResponse{Message: "Artwork deleted!"})
	}
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error, id, msg string) {
	log := logrus.WithError(err).WithField("artwork_id", id)
	if errors.Is(err, core.ErrArtworkNotFound) {
		log.Warn(msg)
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": "Artwork not found"})
		return
	}
	log.Error(msg)
	render.Status(r, http.StatusInternalServerError)
	render.JSON(w, r, map[string]string{"error": msg})
}
