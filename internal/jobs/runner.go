package jobs

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"productimages/internal/ingest"
	"productimages/internal/logger"
	"productimages/internal/models"
	"productimages/internal/queue"
	"productimages/internal/storage"
)

// ArchiveJob is the queued request to ingest an uploaded archive.
type ArchiveJob struct {
	ID         string       `json:"id"`
	ArchiveURL string       `json:"archiveUrl"`
	Actor      models.Actor `json:"actor"`
	PartNumber string       `json:"partNumber,omitempty"`
}

// Runner executes archive jobs, typically from a queue consumer.
type Runner struct {
	tracker  *Tracker
	ingestor *ingest.Ingestor
	blobs    storage.Blobs
	log      *logger.Logger
}

func NewRunner(tracker *Tracker, ingestor *ingest.Ingestor, blobs storage.Blobs, log *logger.Logger) *Runner {
	return &Runner{
		tracker:  tracker,
		ingestor: ingestor,
		blobs:    blobs,
		log:      log.With("component", "jobs.Runner"),
	}
}

// Run ingests the staged archive and removes it afterwards.
func (r *Runner) Run(ctx context.Context, job ArchiveJob) error {
	const op = "jobs.Run"

	r.tracker.Start(job.ID)
	data, err := r.blobs.Open(ctx, job.ArchiveURL)
	if err != nil {
		err = fmt.Errorf("%s: open staged archive: %w", op, err)
		r.tracker.Finish(job.ID, ingest.Summary{}, err)
		return err
	}

	sum, err := r.ingestor.IngestArchive(ctx, data, ingest.Options{
		Actor:      job.Actor,
		PartNumber: job.PartNumber,
		Progress: func(processed, total int) {
			r.tracker.Progress(job.ID, processed, total)
		},
	})
	r.tracker.Finish(job.ID, sum, err)

	if delErr := r.blobs.Delete(ctx, job.ArchiveURL); delErr != nil {
		r.log.Warn("failed to remove staged archive", "job", job.ID, "error", delErr)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.log.Info("archive job finished", "job", job.ID, "images", len(sum.ImageIDs), "failed", sum.Failed)
	return nil
}

// Handle adapts Run to a queue consumer.
func (r *Runner) Handle(ctx context.Context, msg kafka.Message) error {
	var job ArchiveJob
	if err := queue.Decode(msg, &job); err != nil {
		return err
	}
	return r.Run(ctx, job)
}
