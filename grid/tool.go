package grid

import (
	"errors"
	"fmt"
)

var ErrUnknownTool = errors.New("unknown tool")

// Tool selects how a stroke resolves its paint color.
type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

// Tools lists the selectable tools in palette order.
var Tools = []Tool{ToolBrush, ToolEraser}

func ParseTool(s string) (Tool, error) {
	switch Tool(s) {
	case ToolBrush, ToolEraser:
		return Tool(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
}

// ResolveColor returns the color a stroke paints with: the background for
// the eraser, the selected color for every other tool.
func ResolveColor(tool Tool, selected, background Color) Color {
	if tool == ToolEraser {
		return background
	}
	return selected
}
