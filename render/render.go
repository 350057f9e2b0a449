// Package render turns grids into raster images for display, saving and
// download.
package render

import (
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"pixelart-server/grid"
)

const (
	MaxScale = 16

	// MaxExportDimension bounds the width and height of a scaled image.
	MaxExportDimension = 4096
)

var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format is an output encoding.
type Format struct {
	Name        string
	Extension   string
	ContentType string
	encoding    imaging.Format
}

var (
	PNG  = Format{Name: "png", Extension: "png", ContentType: "image/png", encoding: imaging.PNG}
	JPEG = Format{Name: "jpeg", Extension: "jpg", ContentType: "image/jpeg", encoding: imaging.JPEG}
	GIF  = Format{Name: "gif", Extension: "gif", ContentType: "image/gif", encoding: imaging.GIF}
	BMP  = Format{Name: "bmp", Extension: "bmp", ContentType: "image/bmp", encoding: imaging.BMP}
)

// ParseFormat maps a format name or extension to a Format. The empty
// string selects PNG.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "", "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "gif":
		return GIF, nil
	case "bmp":
		return BMP, nil
	}
	return Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// Rasterize draws one image pixel per cell.
func Rasterize(g grid.Grid) *image.NRGBA {
	img := imaging.New(g.Cols(), g.Rows(), grid.White.RGBA())
	for y := 0; y < g.Rows(); y++ {
		for x := 0; x < g.Cols(); x++ {
			c, _ := g.At(x, y)
			img.SetNRGBA(x, y, c.RGBA())
		}
	}
	return img
}

// Render paints every cell as a pixelSize × pixelSize block at
// (x·pixelSize, y·pixelSize).
func Render(g grid.Grid, pixelSize int) *image.NRGBA {
	img := Rasterize(g)
	if pixelSize <= 1 || g.Cols() == 0 || g.Rows() == 0 {
		return img
	}
	return imaging.Resize(img, g.Cols()*pixelSize, g.Rows()*pixelSize, imaging.NearestNeighbor)
}

// Scale enlarges img by an integer factor without smoothing. The factor is
// clamped to [1, MaxScale] and lowered until neither side exceeds
// MaxExportDimension.
func Scale(img image.Image, factor int) image.Image {
	if factor > MaxScale {
		factor = MaxScale
	}
	b := img.Bounds()
	if side := max(b.Dx(), b.Dy()); side > 0 && side*factor > MaxExportDimension {
		factor = MaxExportDimension / side
	}
	if factor <= 1 {
		return img
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func Encode(w io.Writer, img image.Image, f Format) error {
	if f.Name == "" {
		f = PNG
	}
	if err := imaging.Encode(w, img, f.encoding); err != nil {
		return fmt.Errorf("encode %s: %w", f.Name, err)
	}
	return nil
}

// DownloadFilename names an exported file after the export time.
func DownloadFilename(t time.Time, f Format) string {
	if f.Extension == "" {
		f = PNG
	}
	return fmt.Sprintf("pixel-art-%d.%s", t.UnixMilli(), f.Extension)
}
