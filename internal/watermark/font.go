package watermark

import (
	"fmt"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// fontCache holds the embedded Go Regular font, parsed once. Faces keep
// per-glyph caches and are not safe for concurrent use, so each render gets
// its own.
type fontCache struct {
	parsed *truetype.Font
}

func newFontCache() (*fontCache, error) {
	parsed, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return &fontCache{parsed: parsed}, nil
}

func (c *fontCache) face(size float64) font.Face {
	return truetype.NewFace(c.parsed, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
}
