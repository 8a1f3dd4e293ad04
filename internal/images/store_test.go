package images

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productimages/internal/catalog"
	"productimages/internal/logger"
	"productimages/internal/matcher"
	"productimages/internal/models"
	"productimages/internal/storage"
)

var (
	supplier = models.Actor{ID: "s-1", DisplayName: "Local Supplier", UploaderType: models.UploaderSupplierLocal}
	admin    = models.Actor{ID: "a-1", DisplayName: "Admin", UploaderType: models.UploaderAdmin}
)

type fixture struct {
	store *Store
	kv    *storage.MemoryKV
	blobs *storage.MemoryBlobs
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	kv := storage.NewMemoryKV()
	blobs := storage.NewMemoryBlobs()
	cat := catalog.NewMemory(
		models.CatalogItem{Identifier: "X1"},
		models.CatalogItem{Identifier: "X2"},
		models.CatalogItem{Identifier: "X3"},
		models.CatalogItem{Identifier: "X4"},
	)
	s := NewStore(kv, blobs, cat, logger.Nop())
	require.NoError(t, s.Load(context.Background()))
	return fixture{store: s, kv: kv, blobs: blobs}
}

func record(id, pn string, by models.Actor) models.ProductImage {
	return models.ProductImage{
		ID:                id,
		PartNumber:        pn,
		FileName:          pn + ".jpg",
		Status:            InitialStatus(by.UploaderType),
		UploadedBy:        by.ID,
		UploaderType:      by.UploaderType,
		UploaderName:      by.DisplayName,
		IsLinkedToProduct: pn != "",
	}
}

func add(ctx context.Context, s *Store, img models.ProductImage) error {
	_, err := s.Insert(ctx, func(context.Context, matcher.Index) (models.ProductImage, error) {
		return img, nil
	})
	return err
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, models.StatusAutoMatched, InitialStatus(models.UploaderAdmin))
	assert.Equal(t, models.StatusAutoMatched, InitialStatus(models.UploaderMarketer))
	assert.Equal(t, models.StatusPending, InitialStatus(models.UploaderSupplierLocal))
	assert.Equal(t, models.StatusPending, InitialStatus(models.UploaderSupplierInternational))
}

func TestApprove_SetsApprovedAt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, add(ctx, f.store, record("1", "X1", supplier)))

	img, err := f.store.Approve(ctx, "1", admin, "looks good")
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, img.Status)
	require.NotNil(t, img.ApprovedAt)
	assert.Equal(t, "Admin", img.ApprovedBy)
	assert.Equal(t, "looks good", img.AdminNotes)
}

func TestReject_LeavesApprovedAtNil(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, add(ctx, f.store, record("1", "X1", supplier)))

	img, err := f.store.Reject(ctx, "1", admin, "blurry")
	require.NoError(t, err)

	assert.Equal(t, models.StatusRejected, img.Status)
	assert.Nil(t, img.ApprovedAt)
	assert.Equal(t, "blurry", img.RejectionReason)
}

func TestTransitions_OnlyFromPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, add(ctx, f.store, record("1", "X1", admin)))

	_, err := f.store.Approve(ctx, "1", admin, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.store.Reject(ctx, "1", admin, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.store.Approve(ctx, "missing", admin, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchive_IsDistinctFromReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, add(ctx, f.store, record("1", "X1", admin)))

	img, err := f.store.Archive(ctx, "1", admin, "superseded")
	require.NoError(t, err)
	assert.Equal(t, models.StatusArchived, img.Status)
	assert.Equal(t, "superseded", img.ArchiveNote)
	assert.Empty(t, img.RejectionReason)
	require.NotNil(t, img.ArchivedAt)

	_, err = f.store.Archive(ctx, "1", admin, "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	img, err = f.store.Restore(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, img.Status)
	assert.Nil(t, img.ArchivedAt)
}

func TestDelete_RequiresConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	img := record("1", "X1", admin)
	img.FileURL, _ = f.blobs.Save(ctx, "images/1.jpg", []byte("full"))
	img.ThumbnailURL, _ = f.blobs.Save(ctx, "thumbs/1.jpg", []byte("thumb"))
	require.NoError(t, add(ctx, f.store, img))

	err := f.store.Delete(ctx, "1", Confirmation{})
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	_, err = f.store.Get("1")
	require.NoError(t, err)

	require.NoError(t, f.store.Delete(ctx, "1", Confirmation{Confirmed: true}))
	_, err = f.store.Get("1")
	assert.ErrorIs(t, err, ErrNotFound)
	for _, url := range []string{img.FileURL, img.ThumbnailURL} {
		_, err := f.blobs.Open(ctx, url)
		assert.Error(t, err, url)
	}

	for _, status := range []string{StatusAll, "AUTO_MATCHED", "ARCHIVED"} {
		page := Query(f.store.All(), Filter{Status: status}, 1, 50)
		assert.Empty(t, page.Items)
	}
	assert.ErrorIs(t, f.store.Delete(ctx, "1", Confirmation{Confirmed: true}), ErrNotFound)
}

func TestEdit_RelinksWithoutStatusChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orig := record("1", "", supplier)
	orig.IsLinkedToProduct = false
	orig.IsAutoMatched = true
	require.NoError(t, add(ctx, f.store, orig))

	pn := " x2 "
	img, err := f.store.Edit(ctx, "1", EditRequest{PartNumber: &pn})
	require.NoError(t, err)
	assert.Equal(t, "X2", img.PartNumber)
	assert.True(t, img.IsLinkedToProduct)
	assert.False(t, img.IsAutoMatched)
	assert.Equal(t, models.StatusPending, img.Status)

	unknown := "ZZZ"
	img, err = f.store.Edit(ctx, "1", EditRequest{PartNumber: &unknown})
	require.NoError(t, err)
	assert.False(t, img.IsLinkedToProduct)

	empty := ""
	notes := "unlinked by admin"
	img, err = f.store.Edit(ctx, "1", EditRequest{PartNumber: &empty, AdminNotes: &notes})
	require.NoError(t, err)
	assert.Equal(t, "", img.PartNumber)
	assert.False(t, img.IsLinkedToProduct)
	assert.Equal(t, "unlinked by admin", img.AdminNotes)
}

func TestMutate_FailedPersistLeavesStoreUnchanged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, add(ctx, f.store, record("1", "X1", supplier)))

	f.kv.FailPuts = errors.New("disk full")
	_, err := f.store.Approve(ctx, "1", admin, "")
	require.Error(t, err)

	img, err := f.store.Get("1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, img.Status)
	assert.Equal(t, 1, f.store.Stats().PendingApproval)
}

func TestLoad_RestoresPersistedCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, add(ctx, f.store, record("1", "X1", admin)))
	require.NoError(t, add(ctx, f.store, record("2", "X2", supplier)))

	reloaded := NewStore(f.kv, f.blobs, catalog.NewMemory(), logger.Nop())
	require.NoError(t, reloaded.Load(ctx))

	all := reloaded.All()
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].ID, "newest first")
	assert.Equal(t, 2, reloaded.Stats().Total)
}

func TestInsert_IndexSeesPriorInsertions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, add(ctx, f.store, record("1", "X1", admin)))

	var sawPrevious bool
	_, err := f.store.Insert(ctx, func(_ context.Context, idx matcher.Index) (models.ProductImage, error) {
		sawPrevious = idx.HasLiveImage("x1")
		return record("2", "X1", admin), nil
	})
	require.NoError(t, err)
	assert.True(t, sawPrevious)
	assert.Len(t, f.store.All(), 2)

	err = add(ctx, f.store, record("2", "X3", admin))
	assert.Error(t, err, "ids are unique")
}

func TestStats_RecomputedOnEveryWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, add(ctx, f.store, record("1", "X1", admin)))
	assert.Equal(t, 25, f.store.Stats().CoveragePercent)

	require.NoError(t, add(ctx, f.store, record("2", "X2", supplier)))
	st := f.store.Stats()
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 1, st.PendingApproval)
	assert.Equal(t, 25, st.CoveragePercent, "pending images do not count towards coverage")

	_, err := f.store.Approve(ctx, "2", admin, "")
	require.NoError(t, err)
	st = f.store.Stats()
	assert.Equal(t, 0, st.PendingApproval)
	assert.Equal(t, 50, st.CoveragePercent)

	require.NoError(t, f.store.Delete(ctx, "1", Confirmation{Confirmed: true}))
	assert.Equal(t, 25, f.store.Stats().CoveragePercent)
}

func TestCountByPart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, add(ctx, f.store, record("1", "X1", admin)))
	require.NoError(t, add(ctx, f.store, record("2", "X1", supplier)))
	require.NoError(t, add(ctx, f.store, record("3", "", supplier)))

	assert.Equal(t, map[string]int{"X1": 2}, f.store.CountByPart())
}
