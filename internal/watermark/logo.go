package watermark

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"productimages/internal/codec"
	"productimages/internal/storage"
)

const maxLogoBytes = 10 << 20

// LogoLoader resolves a logo reference to a decoded raster.
type LogoLoader interface {
	Load(ctx context.Context, url string) (image.Image, error)
}

// BlobLogoLoader reads logos from blob storage, or over HTTP for absolute
// http(s) URLs.
type BlobLogoLoader struct {
	blobs  storage.Blobs
	client *http.Client
}

func NewBlobLogoLoader(blobs storage.Blobs) *BlobLogoLoader {
	return &BlobLogoLoader{blobs: blobs, client: &http.Client{Timeout: 10 * time.Second}}
}

func (l *BlobLogoLoader) Load(ctx context.Context, url string) (image.Image, error) {
	const op = "watermark.LoadLogo"

	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		data, err = l.fetch(ctx, url)
	} else {
		data, err = l.blobs.Open(ctx, url)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	img, err := codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return img, nil
}

func (l *BlobLogoLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxLogoBytes))
}
