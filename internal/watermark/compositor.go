// Package watermark renders text and logo overlays onto product images.
package watermark

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"

	"productimages/internal/codec"
	"productimages/internal/logger"
	"productimages/internal/models"
)

const (
	// 4px blur at 50% black behind every text run.
	shadowSigma = 2.0
	shadowAlpha = 0.5

	lineHeightFactor = 1.2
	logoScale        = 2.0
	outputQuality    = 0.92
)

type Compositor struct {
	logos LogoLoader
	fonts *fontCache
	log   *logger.Logger
}

func New(logos LogoLoader, log *logger.Logger) (*Compositor, error) {
	fonts, err := newFontCache()
	if err != nil {
		return nil, fmt.Errorf("watermark.New: %w", err)
	}
	return &Compositor{
		logos: logos,
		fonts: fonts,
		log:   log.With("component", "watermark.Compositor"),
	}, nil
}

// cluster is the unit drawn at a placement point: an optional logo above an
// optional line of text.
type cluster struct {
	text  string
	textW float64
	lineH float64
	logo  image.Image
	logoW float64
	logoH float64
	w, h  float64
}

// Composite renders settings over src. src itself is returned when the
// watermark is disabled or there is nothing to draw.
func (c *Compositor) Composite(ctx context.Context, src image.Image, settings models.WatermarkSettings) (image.Image, error) {
	if !settings.Enabled {
		return src, nil
	}
	s := settings.Normalize()

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return src, nil
	}

	cl, logoSize := c.layout(ctx, s)
	if cl.text == "" && cl.logo == nil {
		return src, nil
	}

	textColor, _ := models.ParseHexColor(s.TextColor)

	shadow := gg.NewContext(w, h)
	content := gg.NewContext(w, h)
	face := c.fonts.face(s.FontPixels())
	shadow.SetFontFace(face)
	content.SetFontFace(face)
	shadow.SetRGBA(0, 0, 0, shadowAlpha)
	content.SetColor(textColor)

	for _, dc := range []*gg.Context{shadow, content} {
		textOnly := dc == shadow
		if s.Position == models.PositionTile {
			drawTiled(dc, cl, s, logoSize, float64(w), float64(h), textOnly)
		} else {
			drawFixed(dc, cl, s, float64(w), float64(h), textOnly)
		}
	}

	layer := imaging.Blur(shadow.Image(), shadowSigma)
	layer = imaging.Overlay(layer, content.Image(), image.Pt(0, 0), 1.0)

	return imaging.Overlay(src, layer, image.Pt(0, 0), s.Opacity), nil
}

// CompositeBytes decodes data, composites it and re-encodes as JPEG. When
// the watermark is disabled data is returned untouched.
func (c *Compositor) CompositeBytes(ctx context.Context, data []byte, settings models.WatermarkSettings) ([]byte, error) {
	const op = "watermark.CompositeBytes"

	if !settings.Enabled {
		return data, nil
	}
	src, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := c.Composite(ctx, src, settings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	encoded, err := codec.EncodeJPEG(out, outputQuality)
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", op, err)
	}
	return encoded, nil
}

// layout measures the cluster. logoSize is the nominal logo box used for
// tile cell sizing; it is zero when no logo is drawn.
func (c *Compositor) layout(ctx context.Context, s models.WatermarkSettings) (cluster, float64) {
	fontPx := s.FontPixels()
	cl := cluster{}

	if s.DrawsText() {
		mc := gg.NewContext(1, 1)
		mc.SetFontFace(c.fonts.face(fontPx))
		cl.text = s.Text
		cl.textW, _ = mc.MeasureString(s.Text)
		cl.lineH = fontPx * lineHeightFactor
	}

	var logoSize float64
	if s.DrawsLogo() && c.logos != nil {
		logo, err := c.logos.Load(ctx, s.LogoURL)
		if err != nil {
			c.log.Warn("logo unavailable, drawing text only", "logoUrl", s.LogoURL, "error", err)
		} else {
			logoSize = math.Round(fontPx * logoScale)
			cl.logo = imaging.Fit(logo, int(logoSize), int(logoSize), imaging.Lanczos)
			lb := cl.logo.Bounds()
			cl.logoW, cl.logoH = float64(lb.Dx()), float64(lb.Dy())
		}
	}

	cl.w = math.Max(cl.textW, cl.logoW)
	cl.h = cl.logoH + cl.lineH
	return cl, logoSize
}

// draw paints the cluster with its top-left corner at (x, y) in the
// current transform.
func (cl cluster) draw(dc *gg.Context, x, y float64, textOnly bool) {
	cx := x + cl.w/2
	if cl.logo != nil && !textOnly {
		dc.DrawImageAnchored(cl.logo, int(math.Round(cx)), int(math.Round(y+cl.logoH/2)), 0.5, 0.5)
	}
	if cl.text != "" {
		dc.DrawStringAnchored(cl.text, cx, y+cl.logoH+cl.lineH/2, 0.5, 0.5)
	}
}

// drawFixed places one cluster relative to an anchor. Rotation turns the
// cluster about the anchor, not the image center.
func drawFixed(dc *gg.Context, cl cluster, s models.WatermarkSettings, w, h float64, textOnly bool) {
	m := float64(s.Margin)

	var ax, ay, x, y float64
	switch s.Position {
	case models.PositionTopLeft:
		ax, ay = m, m
		x, y = ax, ay
	case models.PositionTopRight:
		ax, ay = w-m, m
		x, y = ax-cl.w, ay
	case models.PositionBottomLeft:
		ax, ay = m, h-m
		x, y = ax, ay-cl.h
	case models.PositionBottomRight:
		ax, ay = w-m, h-m
		x, y = ax-cl.w, ay-cl.h
	default:
		ax, ay = w/2, h/2
		x, y = ax-cl.w/2, ay-cl.h/2
	}

	dc.Push()
	if s.Rotation != 0 {
		dc.RotateAbout(gg.Radians(float64(s.Rotation)), ax, ay)
	}
	cl.draw(dc, x, y, textOnly)
	dc.Pop()
}

// tileCell is the size of one tile: the cluster's nominal box padded by two
// margins on every side.
func tileCell(cl cluster, logoSize, margin float64) (w, h float64) {
	return math.Max(cl.textW, logoSize) + 4*margin, logoSize + cl.lineH + 4*margin
}

// drawTiled covers the canvas with a rotated brick pattern. The plane is
// centered on the image and spans the diagonal in both axes so no corner is
// left bare after rotation. Odd rows shift by half a cell.
func drawTiled(dc *gg.Context, cl cluster, s models.WatermarkSettings, logoSize, w, h float64, textOnly bool) {
	cellW, cellH := tileCell(cl, logoSize, float64(s.Margin))
	if cellW <= 0 || cellH <= 0 {
		return
	}
	diag := math.Hypot(w, h)
	rows := int(math.Ceil(diag / cellH))
	cols := int(math.Ceil(diag/cellW)) + 1

	dc.Push()
	dc.Translate(w/2, h/2)
	if s.Rotation != 0 {
		dc.Rotate(gg.Radians(float64(s.Rotation)))
	}
	for r := -rows; r <= rows; r++ {
		cy := float64(r) * cellH
		offset := 0.0
		if r%2 != 0 {
			offset = cellW / 2
		}
		for c := -cols; c <= cols; c++ {
			cx := float64(c)*cellW + offset
			cl.draw(dc, cx-cl.w/2, cy-cl.h/2, textOnly)
		}
	}
	dc.Pop()
}
