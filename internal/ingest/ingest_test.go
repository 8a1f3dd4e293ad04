package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productimages/internal/archive"
	"productimages/internal/catalog"
	"productimages/internal/images"
	"productimages/internal/logger"
	"productimages/internal/matcher"
	"productimages/internal/models"
	"productimages/internal/storage"
)

var (
	admin    = models.Actor{ID: "u-1", DisplayName: "Ada", UploaderType: models.UploaderAdmin}
	supplier = models.Actor{ID: "s-1", DisplayName: "Acme Ltd", UploaderType: models.UploaderSupplierLocal}
)

type fixture struct {
	kv       *storage.MemoryKV
	blobs    *storage.MemoryBlobs
	store    *images.Store
	ingestor *Ingestor
}

func newFixture(t *testing.T, workers int, items ...models.CatalogItem) *fixture {
	t.Helper()
	kv := storage.NewMemoryKV()
	blobs := storage.NewMemoryBlobs()
	cat := catalog.NewMemory(items...)
	store := images.NewStore(kv, blobs, cat, logger.Nop())
	require.NoError(t, store.Load(context.Background()))

	cfg := models.Config{}
	cfg.ApplyDefaults()
	cfg.Ingest.Workers = workers
	return &fixture{
		kv:       kv,
		blobs:    blobs,
		store:    store,
		ingestor: New(store, blobs, cat, cfg, logger.Nop()),
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 200, G: 40, B: 40, A: 255})))
	return buf.Bytes()
}

func zipBytes(t *testing.T, entries map[string][]byte, dirs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, d := range dirs {
		_, err := zw.Create(d)
		require.NoError(t, err)
	}
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestIngestArchive_OnlyImageMembersBecomeRecords(t *testing.T) {
	f := newFixture(t, 2, models.CatalogItem{Identifier: "A100"})
	img := pngBytes(t, 20, 20)
	data := zipBytes(t, map[string][]byte{
		"photos/A100.png": img,
		"photos/B200.jpg": pngBytes(t, 30, 10),
		"C300.gif":        img,
		"readme.txt":      []byte("hello"),
		"specs.pdf":       []byte("%PDF-1.4"),
	}, "photos/")

	sum, err := f.ingestor.IngestArchive(context.Background(), data, Options{Actor: supplier})
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Total)
	assert.Len(t, sum.ImageIDs, 3)
	assert.Len(t, f.store.All(), 3)
	assert.Equal(t, 1, sum.Matched)
	assert.Equal(t, 2, sum.Unmatched)
	for _, img := range f.store.All() {
		for _, url := range []string{img.FileURL, img.ThumbnailURL} {
			_, err := f.blobs.Open(context.Background(), url)
			assert.NoError(t, err, url)
		}
	}
}

func TestIngestArchive_OversizedMemberIsSkipped(t *testing.T) {
	f := newFixture(t, 1)
	f.ingestor.maxMember = 16
	data := zipBytes(t, map[string][]byte{"ABC-100.png": pngBytes(t, 20, 20)})

	sum, err := f.ingestor.IngestArchive(context.Background(), data, Options{Actor: admin})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Errors, 1)
	assert.Contains(t, sum.Errors[0].Error, archive.ErrMemberTooLarge.Error())
	assert.Empty(t, f.store.All())
}

func TestIngestArchive_CorruptContainerFailsWhole(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.ingestor.IngestArchive(context.Background(), []byte("not a zip at all"), Options{Actor: admin})
	require.Error(t, err)
	assert.ErrorIs(t, err, archive.ErrArchiveFormat)
	assert.Empty(t, f.store.All())
}

func TestIngestFiles_DuplicateIsAddedAlongsideWithNote(t *testing.T) {
	f := newFixture(t, 1, models.CatalogItem{Identifier: "X1"})
	ctx := context.Background()
	_, err := f.store.Insert(ctx, func(context.Context, matcher.Index) (models.ProductImage, error) {
		return models.ProductImage{ID: "old", PartNumber: "X1", Status: models.StatusApproved, UploaderType: models.UploaderAdmin}, nil
	})
	require.NoError(t, err)

	sum, err := f.ingestor.IngestFiles(ctx, []File{{Name: "whatever.png", Data: pngBytes(t, 10, 10)}},
		Options{Actor: supplier, PartNumber: " x1 "})
	require.NoError(t, err)

	all := f.store.All()
	require.Len(t, all, 2)
	fresh := all[0]
	assert.Equal(t, sum.ImageIDs[0], fresh.ID)
	assert.Equal(t, "X1", fresh.PartNumber)
	assert.True(t, fresh.IsLinkedToProduct)
	assert.False(t, fresh.IsAutoMatched)
	assert.Contains(t, fresh.AdminNotes, "X1")
	assert.Equal(t, models.StatusPending, fresh.Status)
	assert.Equal(t, 1, sum.Duplicates)

	old, err := f.store.Get("old")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, old.Status)
}

func TestIngestFiles_SameBatchSiblingsAreDuplicates(t *testing.T) {
	f := newFixture(t, 4, models.CatalogItem{Identifier: "ABC-1"})
	data := pngBytes(t, 10, 10)

	sum, err := f.ingestor.IngestFiles(context.Background(), []File{
		{Name: "abc-1.png", Data: data},
		{Name: "ABC-1.jpg", Data: data},
	}, Options{Actor: admin})
	require.NoError(t, err)

	all := f.store.All()
	require.Len(t, all, 2)
	// Newest first: the second file carries the note.
	assert.Equal(t, sum.ImageIDs[1], all[0].ID)
	assert.NotEmpty(t, all[0].AdminNotes)
	assert.Empty(t, all[1].AdminNotes)
	assert.Equal(t, 1, sum.Duplicates)

	for _, img := range all {
		assert.Equal(t, models.StatusAutoMatched, img.Status)
		assert.True(t, img.IsAutoMatched)
		require.NotNil(t, img.ApprovedAt)
		assert.Equal(t, "Ada", img.ApprovedBy)
	}
}

func TestIngestFiles_PendingSiblingIsNotADuplicate(t *testing.T) {
	f := newFixture(t, 1, models.CatalogItem{Identifier: "ABC-1"})
	data := pngBytes(t, 10, 10)

	sum, err := f.ingestor.IngestFiles(context.Background(), []File{
		{Name: "ABC-1.png", Data: data},
		{Name: "ABC-1.png", Data: data},
	}, Options{Actor: supplier})
	require.NoError(t, err)
	assert.Zero(t, sum.Duplicates)
	for _, img := range f.store.All() {
		assert.Equal(t, models.StatusPending, img.Status)
		assert.Nil(t, img.ApprovedAt)
	}
}

func TestIngestFiles_InvalidImagesAreSkipped(t *testing.T) {
	f := newFixture(t, 3)

	sum, err := f.ingestor.IngestFiles(context.Background(), []File{
		{Name: "good-1.png", Data: pngBytes(t, 10, 10)},
		{Name: "broken.png", Data: []byte("garbage")},
		{Name: "good-2.png", Data: pngBytes(t, 10, 10)},
	}, Options{Actor: supplier})
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Errors, 1)
	assert.Equal(t, "broken.png", sum.Errors[0].Name)
	assert.Len(t, f.store.All(), 2)
}

func TestIngestFiles_NonImageInputIsSkipped(t *testing.T) {
	f := newFixture(t, 2, models.CatalogItem{Identifier: "ABC-123"})
	data := pngBytes(t, 10, 10)

	sum, err := f.ingestor.IngestFiles(context.Background(), []File{
		{Name: "ABC-123.txt", Data: data},
		{Name: "ABC-123.png", Data: data, ContentType: "application/pdf"},
	}, Options{Actor: admin})
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Failed)
	assert.Empty(t, sum.ImageIDs)
	assert.Empty(t, f.store.All())
	for _, fe := range sum.Errors {
		assert.Contains(t, fe.Error, ErrUnsupportedFormat.Error())
	}
}

func TestIngestFiles_BlankExplicitPartFallsBackToFileName(t *testing.T) {
	f := newFixture(t, 1, models.CatalogItem{Identifier: "ABC-123"})

	sum, err := f.ingestor.IngestFiles(context.Background(), []File{{Name: "abc-123.png", Data: pngBytes(t, 5, 5)}},
		Options{Actor: admin, PartNumber: "   "})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Matched)

	img := f.store.All()[0]
	assert.Equal(t, "ABC-123", img.PartNumber)
	assert.True(t, img.IsAutoMatched)
	assert.True(t, img.IsLinkedToProduct)
}

func TestIngestFiles_ShortNameIsUnmatched(t *testing.T) {
	f := newFixture(t, 1, models.CatalogItem{Identifier: "AB"})

	sum, err := f.ingestor.IngestFiles(context.Background(), []File{{Name: "ab.png", Data: pngBytes(t, 5, 5)}},
		Options{Actor: admin})
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Unmatched)
	img := f.store.All()[0]
	assert.Empty(t, img.PartNumber)
	assert.False(t, img.IsLinkedToProduct)
	assert.False(t, img.IsAutoMatched)
}

func TestIngestFiles_ProgressAndCancellation(t *testing.T) {
	f := newFixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	files := make([]File, 5)
	for i := range files {
		files[i] = File{Name: "part-00" + string(rune('1'+i)) + ".png", Data: pngBytes(t, 8, 8)}
	}

	var seen []int
	sum, err := f.ingestor.IngestFiles(ctx, files, Options{
		Actor: supplier,
		Progress: func(processed, total int) {
			seen = append(seen, processed)
			assert.Equal(t, 5, total)
			if processed == 2 {
				cancel()
			}
		},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, sum.Canceled)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Len(t, f.store.All(), 2)
	assert.Len(t, sum.ImageIDs, 2)
}

func TestIngestFiles_InvalidUploaderRejected(t *testing.T) {
	f := newFixture(t, 1)
	_, err := f.ingestor.IngestFiles(context.Background(), nil, Options{Actor: models.Actor{UploaderType: "ROBOT"}})
	assert.ErrorIs(t, err, ErrInvalidUploader)
}

func TestIngestFiles_PersistFailureRemovesPayloads(t *testing.T) {
	f := newFixture(t, 1)
	f.kv.FailPuts = errors.New("disk full")
	f.ingestor.newID = func() string { return "fixed" }

	_, err := f.ingestor.IngestFiles(context.Background(), []File{{Name: "abc.png", Data: pngBytes(t, 5, 5)}},
		Options{Actor: admin})
	require.Error(t, err)
	assert.Empty(t, f.store.All())
	for _, url := range []string{"/files/images/fixed.jpg", "/files/thumbs/fixed.jpg"} {
		_, err := f.blobs.Open(context.Background(), url)
		assert.Error(t, err, url)
	}
}
