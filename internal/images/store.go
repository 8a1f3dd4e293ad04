package images

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"productimages/internal/catalog"
	"productimages/internal/identifier"
	"productimages/internal/logger"
	"productimages/internal/matcher"
	"productimages/internal/models"
	"productimages/internal/storage"
)

// RecordsKey is the KV key the collection is persisted under.
const RecordsKey = "product_images"

// BuildFunc produces a record to insert. It runs under the write lock and
// sees every record committed so far through index.
type BuildFunc func(ctx context.Context, index matcher.Index) (models.ProductImage, error)

// EditRequest changes a record's part number and/or admin notes. Nil fields
// are left alone.
type EditRequest struct {
	PartNumber *string `json:"partNumber,omitempty"`
	AdminNotes *string `json:"adminNotes,omitempty"`
}

// Store owns the image collection. All writes are serialized; each one
// persists the full collection before it becomes visible and then
// recomputes stats from scratch.
type Store struct {
	mu      sync.RWMutex
	kv      storage.KV
	blobs   storage.Blobs
	catalog catalog.Catalog
	matcher *matcher.Matcher
	log     *logger.Logger
	now     func() time.Time

	images      []models.ProductImage // newest first
	stats       models.ImageStats
	catalogSize int
}

func NewStore(kv storage.KV, blobs storage.Blobs, cat catalog.Catalog, log *logger.Logger) *Store {
	return &Store{
		kv:      kv,
		blobs:   blobs,
		catalog: cat,
		matcher: matcher.New(cat),
		log:     log.With("component", "images.Store"),
		now:     time.Now,
	}
}

// Load replaces the in-memory collection with the persisted one.
func (s *Store) Load(ctx context.Context) error {
	const op = "images.Load"

	s.mu.Lock()
	defer s.mu.Unlock()

	var loaded []models.ProductImage
	raw, err := s.kv.Get(ctx, RecordsKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	default:
		if err := json.Unmarshal(raw, &loaded); err != nil {
			return fmt.Errorf("%s: decode: %w", op, err)
		}
	}
	for i := range loaded {
		loaded[i].PartNumber = identifier.Normalize(loaded[i].PartNumber)
	}

	s.images = loaded
	s.stats = s.recompute(ctx, loaded)
	s.log.Info("image collection loaded", "count", len(loaded))
	return nil
}

// Insert builds a record under the write lock and prepends it.
func (s *Store) Insert(ctx context.Context, build BuildFunc) (models.ProductImage, error) {
	var out models.ProductImage
	err := s.mutate(ctx, func(images []models.ProductImage) ([]models.ProductImage, error) {
		img, err := build(ctx, liveIndex(images))
		if err != nil {
			return nil, err
		}
		img.PartNumber = identifier.Normalize(img.PartNumber)
		for _, existing := range images {
			if existing.ID == img.ID {
				return nil, fmt.Errorf("duplicate image id %s", img.ID)
			}
		}
		out = img
		return append([]models.ProductImage{img}, images...), nil
	})
	return out, err
}

// Approve moves a pending image to APPROVED and stamps the reviewer.
func (s *Store) Approve(ctx context.Context, id string, reviewer models.Actor, notes string) (models.ProductImage, error) {
	return s.update(ctx, id, func(img *models.ProductImage) error {
		next, err := nextStatus(img.Status, actionApprove)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		img.Status = next
		img.ApprovedAt = &now
		img.ApprovedBy = actorName(reviewer)
		img.AdminNotes = appendNote(img.AdminNotes, notes)
		return nil
	})
}

// Reject moves a pending image to REJECTED. No other field is cleared.
func (s *Store) Reject(ctx context.Context, id string, reviewer models.Actor, reason string) (models.ProductImage, error) {
	return s.update(ctx, id, func(img *models.ProductImage) error {
		next, err := nextStatus(img.Status, actionReject)
		if err != nil {
			return err
		}
		img.Status = next
		img.RejectionReason = strings.TrimSpace(reason)
		return nil
	})
}

// Archive soft-deletes an image from any state.
func (s *Store) Archive(ctx context.Context, id string, actor models.Actor, note string) (models.ProductImage, error) {
	return s.update(ctx, id, func(img *models.ProductImage) error {
		next, err := nextStatus(img.Status, actionArchive)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		img.Status = next
		img.ArchiveNote = strings.TrimSpace(note)
		img.ArchivedAt = &now
		img.ArchivedBy = actorName(actor)
		return nil
	})
}

// Restore brings an archived image back into review.
func (s *Store) Restore(ctx context.Context, id string) (models.ProductImage, error) {
	return s.update(ctx, id, func(img *models.ProductImage) error {
		next, err := nextStatus(img.Status, actionRestore)
		if err != nil {
			return err
		}
		img.Status = next
		img.ArchiveNote = ""
		img.ArchivedAt = nil
		img.ArchivedBy = ""
		return nil
	})
}

// Edit re-links or unlinks an image and/or replaces its notes. Status is
// never changed here.
func (s *Store) Edit(ctx context.Context, id string, req EditRequest) (models.ProductImage, error) {
	return s.update(ctx, id, func(img *models.ProductImage) error {
		if req.PartNumber != nil {
			pn := identifier.FromExplicit(*req.PartNumber)
			d, err := s.matcher.Match(ctx, pn, nil)
			if err != nil {
				return err
			}
			img.PartNumber = pn
			img.IsLinkedToProduct = d.Linked
			img.IsAutoMatched = false
		}
		if req.AdminNotes != nil {
			img.AdminNotes = strings.TrimSpace(*req.AdminNotes)
		}
		return nil
	})
}

// Delete removes an image permanently. Payloads are removed best-effort
// after the collection has been persisted without the record.
func (s *Store) Delete(ctx context.Context, id string, c Confirmation) error {
	if !c.Confirmed {
		return ErrConfirmationRequired
	}

	var removed models.ProductImage
	err := s.mutate(ctx, func(images []models.ProductImage) ([]models.ProductImage, error) {
		for i, img := range images {
			if img.ID == id {
				removed = img
				return append(images[:i], images[i+1:]...), nil
			}
		}
		return nil, ErrNotFound
	})
	if err != nil {
		return err
	}

	if s.blobs != nil {
		for _, url := range []string{removed.FileURL, removed.ThumbnailURL} {
			if url == "" {
				continue
			}
			if err := s.blobs.Delete(ctx, url); err != nil {
				s.log.Warn("failed to delete image payload (ignored)", "id", id, "url", url, "error", err)
			}
		}
	}
	s.log.Info("image permanently deleted", "id", id)
	return nil
}

func (s *Store) Get(id string) (models.ProductImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, img := range s.images {
		if img.ID == id {
			return img, nil
		}
	}
	return models.ProductImage{}, ErrNotFound
}

// All returns a snapshot of the collection, newest first.
func (s *Store) All() []models.ProductImage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ProductImage(nil), s.images...)
}

func (s *Store) Stats() models.ImageStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// HasLiveImage reports whether an APPROVED or AUTO_MATCHED image exists for
// partNumber.
func (s *Store) HasLiveImage(partNumber string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return liveIndex(s.images).HasLiveImage(partNumber)
}

// CountByPart returns how many images reference each part number.
func (s *Store) CountByPart() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, img := range s.images {
		if img.PartNumber != "" && img.Status != models.StatusArchived {
			out[img.PartNumber]++
		}
	}
	return out
}

func (s *Store) update(ctx context.Context, id string, fn func(img *models.ProductImage) error) (models.ProductImage, error) {
	var out models.ProductImage
	err := s.mutate(ctx, func(images []models.ProductImage) ([]models.ProductImage, error) {
		for i := range images {
			if images[i].ID != id {
				continue
			}
			if err := fn(&images[i]); err != nil {
				return nil, err
			}
			out = images[i]
			return images, nil
		}
		return nil, ErrNotFound
	})
	return out, err
}

// mutate applies fn to a copy of the collection, persists the result and
// only then swaps it in. A failed persist leaves the store unchanged.
func (s *Store) mutate(ctx context.Context, fn func([]models.ProductImage) ([]models.ProductImage, error)) error {
	const op = "images.mutate"

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(append([]models.ProductImage(nil), s.images...))
	if err != nil {
		return err
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}
	if err := s.kv.Put(ctx, RecordsKey, raw); err != nil {
		return fmt.Errorf("%s: persist: %w", op, err)
	}

	s.images = next
	s.stats = s.recompute(ctx, next)
	return nil
}

// recompute must be called with the write lock held. A catalog outage keeps
// the last known catalog size rather than failing the write.
func (s *Store) recompute(ctx context.Context, images []models.ProductImage) models.ImageStats {
	if s.catalog != nil {
		items, err := s.catalog.ListAll(ctx)
		if err != nil {
			s.log.Warn("catalog unavailable for coverage, using last known size", "error", err, "size", s.catalogSize)
		} else {
			s.catalogSize = len(items)
		}
	}
	return ComputeStats(images, s.catalogSize)
}

type liveIndex []models.ProductImage

func (l liveIndex) HasLiveImage(partNumber string) bool {
	pn := identifier.Normalize(partNumber)
	if pn == "" {
		return false
	}
	for _, img := range l {
		if img.PartNumber == pn && img.Status.Live() {
			return true
		}
	}
	return false
}

func actorName(a models.Actor) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.ID
}

func appendNote(existing, note string) string {
	note = strings.TrimSpace(note)
	switch {
	case note == "":
		return existing
	case existing == "":
		return note
	default:
		return existing + "\n" + note
	}
}
