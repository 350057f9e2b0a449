package core

import (
	"fmt"
	"os"
	"strconv"

	"pixelart-server/grid"
)

const (
	DefaultCanvasSize = 512
	DefaultPixelSize  = 16
)

// CanvasConfig fixes the geometry of every canvas the server creates.
type CanvasConfig struct {
	CanvasSize int        `json:"canvasSize"`
	PixelSize  int        `json:"pixelSize"`
	Background grid.Color `json:"background"`
}

func DefaultCanvasConfig() CanvasConfig {
	return CanvasConfig{
		CanvasSize: DefaultCanvasSize,
		PixelSize:  DefaultPixelSize,
		Background: grid.White,
	}
}

// Cells returns the grid width and height in cells.
func (c CanvasConfig) Cells() int {
	return c.CanvasSize / c.PixelSize
}

func (c CanvasConfig) Validate() error {
	if c.PixelSize <= 0 {
		return fmt.Errorf("pixel size must be positive, got %d", c.PixelSize)
	}
	if c.CanvasSize <= 0 || c.CanvasSize%c.PixelSize != 0 {
		return fmt.Errorf("canvas size %d must be a positive multiple of pixel size %d", c.CanvasSize, c.PixelSize)
	}
	if _, err := grid.ParseColor(string(c.Background)); err != nil {
		return fmt.Errorf("background: %w", err)
	}
	return nil
}

// CanvasConfigFromEnv reads CANVAS_SIZE, PIXEL_SIZE and BACKGROUND_COLOR on
// top of the defaults.
func CanvasConfigFromEnv() (CanvasConfig, error) {
	cfg := DefaultCanvasConfig()

	if v := os.Getenv("CANVAS_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("CANVAS_SIZE: %w", err)
		}
		cfg.CanvasSize = n
	}
	if v := os.Getenv("PIXEL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("PIXEL_SIZE: %w", err)
		}
		cfg.PixelSize = n
	}
	if v := os.Getenv("BACKGROUND_COLOR"); v != "" {
		c, err := grid.ParseColor(v)
		if err != nil {
			return cfg, fmt.Errorf("BACKGROUND_COLOR: %w", err)
		}
		cfg.Background = c
	}

	return cfg, cfg.Validate()
}
