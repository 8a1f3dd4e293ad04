package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"productimages/internal/models"
)

// ErrInvalidImage marks payloads that cannot be decoded as a raster. Batch
// callers skip the file and continue.
var ErrInvalidImage = errors.New("invalid image")

const (
	qualityFloor = 1 // tenths
	qualityStep  = 1 // tenths
)

type Engine struct {
	MaxDimension     int
	ThumbnailSize    int
	ThumbnailQuality float64
}

func NewEngine(cfg models.CodecConfig) *Engine {
	return &Engine{
		MaxDimension:     cfg.MaxDimension,
		ThumbnailSize:    cfg.ThumbnailSize,
		ThumbnailQuality: cfg.ThumbnailQuality,
	}
}

type Result struct {
	Data     []byte
	Preview  []byte
	Width    int
	Height   int
	Quality  float64
	Attempts int
}

// Decode reads any supported raster and applies EXIF orientation.
func Decode(raw []byte) (image.Image, error) {
	const op = "codec.Decode"
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: %w: empty payload", op, ErrInvalidImage)
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%s: %w: zero dimension", op, ErrInvalidImage)
	}
	return img, nil
}

// EncodeJPEG writes img as JPEG at quality in (0, 1].
func EncodeJPEG(img image.Image, quality float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flatten(img), imaging.JPEG, imaging.JPEGQuality(jpegQuality(quality))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Compress decodes raw, bounds it to MaxDimension and re-encodes it as JPEG,
// lowering quality by 0.1 per attempt until the payload fits maxSizeBytes or
// quality reaches 0.1. The floor result is accepted even when oversized.
func (e *Engine) Compress(raw []byte, maxSizeBytes int, initialQuality float64) (Result, error) {
	const op = "codec.Compress"

	if maxSizeBytes <= 0 {
		maxSizeBytes = models.DefaultMaxSizeBytes
	}
	if initialQuality <= 0 || initialQuality > 1 {
		initialQuality = models.DefaultInitialQuality
	}

	src, err := Decode(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	img := flatten(e.bound(src))

	tenths := int(math.Round(initialQuality * 10))
	if tenths < qualityFloor {
		tenths = qualityFloor
	}

	var (
		data     []byte
		attempts int
	)
	for {
		attempts++
		data, err = EncodeJPEG(img, float64(tenths)/10)
		if err != nil {
			return Result{}, fmt.Errorf("%s: encode: %w", op, err)
		}
		if len(data) <= maxSizeBytes || tenths <= qualityFloor {
			break
		}
		tenths -= qualityStep
	}

	preview, err := e.thumbnailOf(img, e.thumbnailSize())
	if err != nil {
		return Result{}, fmt.Errorf("%s: preview: %w", op, err)
	}

	b := img.Bounds()
	return Result{
		Data:     data,
		Preview:  preview,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Quality:  float64(tenths) / 10,
		Attempts: attempts,
	}, nil
}

// Thumbnail downscales payload so its larger side equals maxSize. Smaller
// images keep their size.
func (e *Engine) Thumbnail(payload []byte, maxSize int) ([]byte, error) {
	const op = "codec.Thumbnail"
	img, err := Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if maxSize <= 0 {
		maxSize = e.thumbnailSize()
	}
	out, err := e.thumbnailOf(img, maxSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (e *Engine) thumbnailOf(img image.Image, maxSize int) ([]byte, error) {
	q := e.ThumbnailQuality
	if q <= 0 || q > 1 {
		q = models.DefaultThumbnailQuality
	}
	return EncodeJPEG(fitWithin(img, maxSize), q)
}

func (e *Engine) bound(img image.Image) image.Image {
	limit := e.MaxDimension
	if limit <= 0 {
		limit = models.DefaultMaxDimension
	}
	return fitWithin(img, limit)
}

func (e *Engine) thumbnailSize() int {
	if e.ThumbnailSize <= 0 {
		return models.DefaultThumbnailSize
	}
	return e.ThumbnailSize
}

// fitWithin scales img down, preserving aspect ratio, so that neither side
// exceeds limit. The larger side lands exactly on limit.
func fitWithin(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}
	if w >= h {
		return imaging.Resize(img, limit, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, limit, imaging.Lanczos)
}

// flatten composites images with transparency onto white, since JPEG has no
// alpha channel.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
