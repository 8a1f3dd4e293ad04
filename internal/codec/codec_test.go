package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productimages/internal/models"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := imaging.New(w, h, c)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 255
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newEngine() *Engine {
	cfg := models.Config{}
	cfg.ApplyDefaults()
	return NewEngine(cfg.Codec)
}

func TestCompress_DownscalesLandscape(t *testing.T) {
	res, err := newEngine().Compress(solidPNG(t, 3000, 1500, color.Gray{Y: 120}), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 2000, res.Width)
	assert.InDelta(t, 1000, res.Height, 1)

	decoded, err := Decode(res.Data)
	require.NoError(t, err)
	assert.Equal(t, res.Width, decoded.Bounds().Dx())
	assert.Equal(t, res.Height, decoded.Bounds().Dy())
}

func TestCompress_DownscalesPortrait(t *testing.T) {
	res, err := newEngine().Compress(solidPNG(t, 1201, 2403, color.White), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 2000, res.Height)
	assert.InDelta(t, 1201.0*2000.0/2403.0, float64(res.Width), 1)
}

func TestCompress_KeepsSmallImages(t *testing.T) {
	res, err := newEngine().Compress(solidPNG(t, 640, 480, color.Black), 0, 0)
	require.NoError(t, err)

	assert.Equal(t, 640, res.Width)
	assert.Equal(t, 480, res.Height)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 0.8, res.Quality)
}

func TestCompress_LadderStopsAtFloor(t *testing.T) {
	res, err := newEngine().Compress(noisePNG(t, 256, 256), 1, 0.8)
	require.NoError(t, err)

	assert.Equal(t, 0.1, res.Quality)
	assert.Equal(t, 8, res.Attempts, "one initial encode plus seven 0.1 steps")
	assert.NotEmpty(t, res.Data)
}

func TestCompress_LadderStopsWhenItFits(t *testing.T) {
	raw := noisePNG(t, 200, 200)
	engine := newEngine()

	high, err := EncodeJPEG(mustDecode(t, raw), 0.8)
	require.NoError(t, err)
	low, err := EncodeJPEG(mustDecode(t, raw), 0.5)
	require.NoError(t, err)
	require.Less(t, len(low), len(high))

	res, err := engine.Compress(raw, len(low), 0.8)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(res.Data), len(low))
	assert.GreaterOrEqual(t, res.Quality, 0.5)
	assert.LessOrEqual(t, res.Attempts, 4)
}

func TestCompress_OutputWithinLimitOrAtFloor(t *testing.T) {
	engine := newEngine()
	for _, limit := range []int{1, 2_000, 20_000, 200_000} {
		res, err := engine.Compress(noisePNG(t, 180, 120), limit, 0.8)
		require.NoError(t, err)
		assert.True(t, len(res.Data) <= limit || res.Quality == 0.1, "limit %d", limit)
		assert.LessOrEqual(t, res.Attempts, 8)
	}
}

func TestCompress_InvalidImage(t *testing.T) {
	_, err := newEngine().Compress([]byte("definitely not an image"), 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = newEngine().Compress(nil, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestCompress_FlattensTransparencyOntoWhite(t *testing.T) {
	res, err := newEngine().Compress(solidPNG(t, 32, 32, color.NRGBA{A: 0}), 0, 0.9)
	require.NoError(t, err)

	img := mustDecode(t, res.Data)
	r, g, b, _ := img.At(16, 16).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestCompress_PreviewIsThumbnail(t *testing.T) {
	res, err := newEngine().Compress(solidPNG(t, 600, 300, color.Gray{Y: 10}), 0, 0)
	require.NoError(t, err)

	preview := mustDecode(t, res.Preview)
	assert.Equal(t, 150, preview.Bounds().Dx())
	assert.Equal(t, 75, preview.Bounds().Dy())
}

func TestThumbnail(t *testing.T) {
	engine := newEngine()

	out, err := engine.Thumbnail(solidPNG(t, 300, 900, color.White), 150)
	require.NoError(t, err)
	img := mustDecode(t, out)
	assert.Equal(t, 150, img.Bounds().Dy())
	assert.Equal(t, 50, img.Bounds().Dx())

	out, err = engine.Thumbnail(solidPNG(t, 40, 20, color.White), 150)
	require.NoError(t, err)
	img = mustDecode(t, out)
	assert.Equal(t, 40, img.Bounds().Dx())

	_, err = engine.Thumbnail([]byte{1, 2, 3}, 150)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestSupportedInputs(t *testing.T) {
	for _, name := range []string{"a.jpg", "b.JPEG", "c.png", "d.webp", "e.gif", "f.bmp", "g.tiff", "h.tif"} {
		assert.True(t, IsSupportedExtension(name), name)
	}
	assert.False(t, IsSupportedExtension("notes.txt"))
	assert.False(t, IsSupportedExtension("noext"))

	assert.True(t, IsSupportedContentType("image/png"))
	assert.True(t, IsSupportedContentType("image/jpeg; charset=binary"))
	assert.False(t, IsSupportedContentType("application/zip"))
}

func mustDecode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := Decode(data)
	require.NoError(t, err)
	return img
}
