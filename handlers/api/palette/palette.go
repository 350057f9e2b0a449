package palette

import (
	"net/http"

	"github.com/go-chi/render"

	"pixelart-server/core"
	"pixelart-server/editor"
	"pixelart-server/grid"
	pxrender "pixelart-server/render"
)

// Presets are the swatches offered next to the free color picker.
var Presets = []grid.Color{"#ff0000", "#00ff00", "#0000ff", "#ffff00", "#ff00ff", "#00ffff"}

type (
	BrushRange struct {
		Min int `json:"min"`
		Max int `json:"max"`
	}

	Response struct {
		Presets      []grid.Color `json:"presets"`
		DefaultColor grid.Color   `json:"defaultColor"`
		DefaultTool  grid.Tool    `json:"defaultTool"`
		DefaultBrush int          `json:"defaultBrushSize"`
		BrushSize    BrushRange   `json:"brushSize"`
		Tools        []grid.Tool  `json:"tools"`
		Formats      []string     `json:"formats"`
		MaxScale     int          `json:"maxScale"`
		MaxExport    int          `json:"maxExportDimension"`
		CanvasSize   int          `json:"canvasSize"`
		PixelSize    int          `json:"pixelSize"`
		Cells        int          `json:"cells"`
		Background   grid.Color   `json:"background"`
	}
)

func NewResponse(cfg core.CanvasConfig) Response {
	return Response{
		Presets:      Presets,
		DefaultColor: editor.DefaultColor,
		DefaultTool:  grid.ToolBrush,
		DefaultBrush: grid.MinBrushSize,
		BrushSize:    BrushRange{Min: grid.MinBrushSize, Max: grid.MaxBrushSize},
		Tools:        grid.Tools,
		Formats: []string{
			pxrender.PNG.Name, pxrender.JPEG.Name, pxrender.GIF.Name, pxrender.BMP.Name,
		},
		MaxScale:   pxrender.MaxScale,
		MaxExport:  pxrender.MaxExportDimension,
		CanvasSize: cfg.CanvasSize,
		PixelSize:  cfg.PixelSize,
		Cells:      cfg.Cells(),
		Background: cfg.Background,
	}
}

// HandleGetPalette describes the tool bar: swatches, defaults and limits.
func HandleGetPalette(cfg core.CanvasConfig) http.HandlerFunc {
	resp := NewResponse(cfg)
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, resp)
	}
}
