// Package ingest turns uploaded files and archives into stored product
// image records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"productimages/internal/archive"
	"productimages/internal/catalog"
	"productimages/internal/codec"
	"productimages/internal/identifier"
	"productimages/internal/images"
	"productimages/internal/logger"
	"productimages/internal/matcher"
	"productimages/internal/models"
	"productimages/internal/storage"
)

var (
	ErrInvalidUploader   = errors.New("invalid uploader type")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

type File struct {
	Name string
	Data []byte
	// ContentType is the declared media type, if the transport carried one.
	ContentType string
}

// ProgressFunc is called after every file, committed or failed.
type ProgressFunc func(processed, total int)

type Options struct {
	Actor models.Actor
	// PartNumber, when set, is used for every file instead of inferring one
	// from the file name.
	PartNumber string
	Progress   ProgressFunc
}

type FileError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type Summary struct {
	Total      int         `json:"total"`
	Matched    int         `json:"matched"`
	Unmatched  int         `json:"unmatched"`
	Duplicates int         `json:"duplicates"`
	Failed     int         `json:"failed"`
	Canceled   bool        `json:"canceled"`
	ImageIDs   []string    `json:"imageIds"`
	Errors     []FileError `json:"errors,omitempty"`
}

type Ingestor struct {
	engine    *codec.Engine
	store     *images.Store
	blobs     storage.Blobs
	matcher   *matcher.Matcher
	cfg       models.CodecConfig
	workers   int
	maxMember int64
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
}

func New(store *images.Store, blobs storage.Blobs, cat catalog.Catalog, cfg models.Config, log *logger.Logger) *Ingestor {
	workers := cfg.Ingest.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Ingestor{
		engine:    codec.NewEngine(cfg.Codec),
		store:     store,
		blobs:     blobs,
		matcher:   matcher.New(cat),
		cfg:       cfg.Codec,
		workers:   workers,
		maxMember: cfg.Ingest.MaxMemberBytes,
		log:       log.With("component", "ingest.Ingestor"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// compressed is the output of the pure, parallel stage for one file.
type compressed struct {
	file   File
	result codec.Result
	err    error
}

// IngestFiles processes files in input order. Invalid images are skipped and
// reported in the summary. On cancellation the records committed so far are
// kept and the summary is returned together with the context error.
func (in *Ingestor) IngestFiles(ctx context.Context, files []File, opts Options) (Summary, error) {
	if err := validate(opts); err != nil {
		return Summary{}, err
	}

	sum := Summary{Total: len(files)}
	b := in.newBatch(&sum, opts)
	for start := 0; start < len(files); start += in.workers {
		end := min(start+in.workers, len(files))
		if err := b.run(ctx, files[start:end]); err != nil {
			return sum, err
		}
	}
	in.log.Info("batch ingested", "total", sum.Total, "matched", sum.Matched,
		"unmatched", sum.Unmatched, "duplicates", sum.Duplicates, "failed", sum.Failed)
	return sum, nil
}

// IngestArchive extracts image members lazily and ingests them like
// IngestFiles. A container that cannot be opened fails the whole call with
// archive.ErrArchiveFormat before any record is written.
func (in *Ingestor) IngestArchive(ctx context.Context, data []byte, opts Options) (Summary, error) {
	const op = "ingest.IngestArchive"

	if err := validate(opts); err != nil {
		return Summary{}, err
	}
	a, err := archive.Open(data)
	if err != nil {
		return Summary{}, fmt.Errorf("%s: %w", op, err)
	}
	a.LimitMemberSize(in.maxMember).OnProgress(func(processed, total int) {
		in.log.Debug("archive member extracted", "processed", processed, "total", total)
	})

	sum := Summary{Total: a.Total()}
	b := in.newBatch(&sum, opts)
	window := make([]File, 0, in.workers)
	for m, err := range a.Members(ctx) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			sum.Canceled = true
			return sum, ctxErr
		}
		if err != nil {
			b.fail(m.Name, err)
			continue
		}
		window = append(window, File{Name: m.Name, Data: m.Data})
		if len(window) == in.workers {
			if err := b.run(ctx, window); err != nil {
				return sum, err
			}
			window = window[:0]
		}
	}
	if len(window) > 0 {
		if err := b.run(ctx, window); err != nil {
			return sum, err
		}
	}
	if err := ctx.Err(); err != nil {
		sum.Canceled = true
		return sum, err
	}
	in.log.Info("archive ingested", "total", sum.Total, "matched", sum.Matched,
		"unmatched", sum.Unmatched, "duplicates", sum.Duplicates, "failed", sum.Failed)
	return sum, nil
}

func validate(opts Options) error {
	if !opts.Actor.UploaderType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidUploader, opts.Actor.UploaderType)
	}
	return nil
}

// batch carries the running summary across windows.
type batch struct {
	in        *Ingestor
	sum       *Summary
	opts      Options
	processed int
}

func (in *Ingestor) newBatch(sum *Summary, opts Options) *batch {
	return &batch{in: in, sum: sum, opts: opts}
}

// run compresses a window of files concurrently, then commits them one at a
// time in input order so duplicate detection sees earlier files of the same
// batch.
func (b *batch) run(ctx context.Context, files []File) error {
	results := make([]compressed, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := checkFormat(f); err != nil {
				results[i] = compressed{file: f, err: err}
				return nil
			}
			res, err := b.in.engine.Compress(f.Data, b.in.cfg.MaxSizeBytes, b.in.cfg.InitialQuality)
			results[i] = compressed{file: f, result: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		b.sum.Canceled = true
		return err
	}

	for _, r := range results {
		if err := ctx.Err(); err != nil {
			b.sum.Canceled = true
			return err
		}
		if r.err != nil {
			b.fail(r.file.Name, r.err)
			continue
		}
		if err := b.commit(ctx, r); err != nil {
			return err
		}
		b.step()
	}
	return nil
}

// checkFormat accepts only image extensions and, when declared, image
// content types.
func checkFormat(f File) error {
	if !codec.IsSupportedExtension(f.Name) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f.Name)
	}
	if f.ContentType != "" && !codec.IsSupportedContentType(f.ContentType) {
		return fmt.Errorf("%w: content type %q", ErrUnsupportedFormat, f.ContentType)
	}
	return nil
}

func (b *batch) fail(name string, err error) {
	b.in.log.Warn("file skipped", "file", name, "error", err)
	b.sum.Failed++
	b.sum.Errors = append(b.sum.Errors, FileError{Name: name, Error: err.Error()})
	b.step()
}

func (b *batch) step() {
	b.processed++
	if b.opts.Progress != nil {
		b.opts.Progress(b.processed, b.sum.Total)
	}
}

// commit stores the payloads and inserts the record. Payloads written for a
// record that fails to insert are removed again.
func (b *batch) commit(ctx context.Context, r compressed) error {
	const op = "ingest.commit"

	in := b.in
	id := in.newID()
	fileURL, err := in.blobs.Save(ctx, "images/"+id+".jpg", r.result.Data)
	if err != nil {
		return fmt.Errorf("%s: save image: %w", op, err)
	}
	thumbURL, err := in.blobs.Save(ctx, "thumbs/"+id+".jpg", r.result.Preview)
	if err != nil {
		in.discard(ctx, fileURL)
		return fmt.Errorf("%s: save thumbnail: %w", op, err)
	}

	partNumber, inferred := b.resolve(r.file.Name)
	actor := b.opts.Actor

	var decision matcher.Decision
	_, err = in.store.Insert(ctx, func(ctx context.Context, index matcher.Index) (models.ProductImage, error) {
		d, err := in.matcher.Match(ctx, partNumber, index)
		if err != nil {
			return models.ProductImage{}, err
		}
		decision = d

		img := models.ProductImage{
			ID:                id,
			PartNumber:        d.PartNumber,
			FileName:          r.file.Name,
			FileURL:           fileURL,
			ThumbnailURL:      thumbURL,
			OriginalSize:      int64(len(r.file.Data)),
			CompressedSize:    int64(len(r.result.Data)),
			Width:             r.result.Width,
			Height:            r.result.Height,
			Status:            images.InitialStatus(actor.UploaderType),
			UploadedBy:        actor.ID,
			UploaderType:      actor.UploaderType,
			UploaderName:      actor.DisplayName,
			IsAutoMatched:     inferred,
			IsLinkedToProduct: d.Linked,
			CreatedAt:         in.now().UTC(),
		}
		if img.Status == models.StatusAutoMatched {
			approvedAt := img.CreatedAt
			img.ApprovedAt = &approvedAt
			img.ApprovedBy = actorName(actor)
		}
		if d.HasPreviousImage {
			img.AdminNotes = matcher.DuplicateNote(d.PartNumber)
		}
		return img, nil
	})
	if err != nil {
		in.discard(ctx, fileURL, thumbURL)
		return fmt.Errorf("%s: %w", op, err)
	}

	b.sum.ImageIDs = append(b.sum.ImageIDs, id)
	if decision.Linked {
		b.sum.Matched++
	} else {
		b.sum.Unmatched++
	}
	if decision.HasPreviousImage {
		b.sum.Duplicates++
	}
	return nil
}

// resolve picks the explicit part number when one was given, otherwise the
// one inferred from name. inferred is false for explicit and unresolved
// identifiers.
func (b *batch) resolve(name string) (string, bool) {
	if pn := identifier.FromExplicit(b.opts.PartNumber); pn != "" {
		return pn, false
	}
	return identifier.FromFileName(name)
}

func actorName(a models.Actor) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.ID
}

func (in *Ingestor) discard(ctx context.Context, urls ...string) {
	for _, u := range urls {
		if err := in.blobs.Delete(ctx, u); err != nil {
			in.log.Warn("failed to remove orphaned payload", "url", u, "error", err)
		}
	}
}
