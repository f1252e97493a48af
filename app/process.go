package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/abhi007singh/legendary-sniffle/app/models"

	"github.com/rs/zerolog"
)

// RowReport summarizes one processing pass over a row.
type RowReport struct {
	RowID     string
	SNo       int
	Attempted int
	Published int
	Skipped   int // already published by an earlier pass
	Failed    int
}

// Processor runs fetch, transcode and publish over each source image of a
// row, in order, one image at a time.
type Processor struct {
	Store      RowStore
	Fetcher    Fetcher
	Transcoder Transcoder
	Publisher  Publisher
	Log        zerolog.Logger
}

// ProcessRow appends each published URL to row.OutputImageURLs and
// checkpoints the row after every success. A failing image is logged and
// skipped. ProcessRow never changes row.Status.
func (p *Processor) ProcessRow(ctx context.Context, row *models.Row) RowReport {
	report := RowReport{RowID: row.ID, SNo: row.SequenceNumber}
	logger := p.Log.With().Str("batch_id", row.BatchID).Str("row", row.ID).Int("sno", row.SequenceNumber).Logger()
	// outputs left by an interrupted earlier pass
	prior := append([]string(nil), row.OutputImageURLs...)
	claimed := make([]bool, len(prior))
	names := RowOutputNames(row.SourceImageURLs)

	for i, src := range row.SourceImageURLs {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Int("remaining", len(row.SourceImageURLs)-i).Msg("row pass interrupted")
			break
		}
		if len(row.OutputImageURLs) >= len(row.SourceImageURLs) {
			logger.Error().Int("outputs", len(row.OutputImageURLs)).Msg("row already has an output per source, refusing to append")
			break
		}

		name := names[i]
		if claimOutput(prior, claimed, name) {
			report.Skipped++
			continue
		}

		report.Attempted++
		start := time.Now()
		out, err := p.processImage(ctx, src, name)
		if err != nil {
			report.Failed++
			logger.Warn().
				Err(err).
				Str("image_url", src).
				Str("error_type", errorKind(err)).
				Msg("image skipped")
			continue
		}

		row.OutputImageURLs = append(row.OutputImageURLs, out)
		report.Published++
		if err := p.Store.SaveOutputs(ctx, *row); err != nil {
			// the next checkpoint rewrites the whole list
			logger.Error().Err(err).Str("image_url", src).Msg("checkpoint failed")
		}
		logger.Debug().Str("image_url", src).Str("output_url", out).Dur("took", time.Since(start)).Msg("image published")
	}
	return report
}

func (p *Processor) processImage(ctx context.Context, src, name string) (string, error) {
	raw, err := p.Fetcher.Fetch(ctx, src)
	if err != nil {
		return "", err
	}
	reduced, err := p.Transcoder.Transcode(raw)
	if err != nil {
		return "", err
	}
	return p.Publisher.Publish(ctx, name, reduced)
}

// claimOutput reports whether a previous pass already published name. Each
// prior output backs at most one source.
func claimOutput(outputs []string, claimed []bool, name string) bool {
	suffix := "/" + url.PathEscape(name)
	for i, o := range outputs {
		if !claimed[i] && strings.HasSuffix(o, suffix) {
			claimed[i] = true
			return true
		}
	}
	return false
}

func errorKind(err error) string {
	var fe *FetchError
	var de *DecodeError
	var pe *PublishError
	switch {
	case errors.As(err, &fe):
		return "fetch"
	case errors.As(err, &de):
		return "decode"
	case errors.As(err, &pe):
		return "publish"
	}
	return "other"
}

// BatchReport summarizes one orchestrator run.
type BatchReport struct {
	BatchID     string
	Rows        []RowReport
	SkippedRows int
}

func (r BatchReport) Totals() (published, failed int) {
	for _, rr := range r.Rows {
		published += rr.Published
		failed += rr.Failed
	}
	return published, failed
}

// Orchestrator processes every row of a batch and then signals completion.
type Orchestrator struct {
	Store         RowStore
	Processor     *Processor
	Notifier      Notifier
	NotifyTimeout time.Duration
	Log           zerolog.Logger

	wg sync.WaitGroup
}

// ProcessBatch loads the rows of batchID, runs a pass over each row that is
// still processing and sends one completion notification in the
// background. Unknown batches return ErrNotFound and send nothing. A run
// cut short by ctx returns its error and sends nothing.
func (o *Orchestrator) ProcessBatch(ctx context.Context, batchID string) (BatchReport, error) {
	start := time.Now()
	report := BatchReport{BatchID: batchID}
	logger := o.Log.With().Str("batch_id", batchID).Logger()

	rows, err := o.Store.FindRows(ctx, batchID)
	if err != nil {
		return report, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	if len(rows) == 0 {
		return report, ErrNotFound
	}
	logger.Info().Int("rows", len(rows)).Msg("processing batch")

	for i := range rows {
		if rows[i].Status != models.StatusProcessing {
			report.SkippedRows++
			logger.Debug().Str("row", rows[i].ID).Str("status", string(rows[i].Status)).Msg("row not processing, skipped")
			continue
		}
		report.Rows = append(report.Rows, o.Processor.ProcessRow(ctx, &rows[i]))
		if ctx.Err() != nil {
			break
		}
	}
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("batch %s interrupted: %w", batchID, err)
	}

	published, failed := report.Totals()
	logger.Info().
		Int("published", published).
		Int("failed", failed).
		Int("skipped_rows", report.SkippedRows).
		Dur("took", time.Since(start)).
		Msg("batch complete")

	o.notify(models.Notification{BatchID: batchID, Status: models.StatusCompleted})
	return report, nil
}

func (o *Orchestrator) notify(n models.Notification) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		timeout := o.NotifyTimeout
		if timeout <= 0 {
			timeout = time.Minute
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := o.Notifier.Notify(ctx, n); err != nil {
			o.Log.Error().Err(err).Str("batch_id", n.BatchID).Msg("completion notification failed")
			return
		}
		o.Log.Info().Str("batch_id", n.BatchID).Msg("completion notification sent")
	}()
}

// Wait blocks until every notification started so far has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}
