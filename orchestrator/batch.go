package orchestrator

import (
	"context"
	"time"

	"alterego/imagegen"
	"alterego/metrics"
	"alterego/models"
	"alterego/styles"

	"go.uber.org/zap"
)

// StartBatch charges one credit per selected style and generates them one
// at a time, in order, in the background. A nil selection uses the
// session's current selection.
//
// Refusals leave every piece of state untouched: ErrInvalidState while a
// batch runs, ErrNoImage, ErrEmptySelection, ErrUnknownStyle for a caption
// outside the current offer, or *InsufficientCreditsError.
//
// Items are keyed by caption but carry the style they resolve to, so a
// wildcard item reads as the concrete style it was drawn as.
func (o *Orchestrator) StartBatch(selected []string) (*Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrClosed
	}
	if o.state == models.StateGenerating {
		return nil, ErrInvalidState
	}
	if o.session.SourceImage == "" {
		return nil, ErrNoImage
	}
	if selected == nil {
		selected = o.session.SelectedStyles
	}
	captions := dedupe(selected)
	if len(captions) == 0 {
		return nil, ErrEmptySelection
	}
	for _, c := range captions {
		if !o.offeredLocked(c) {
			return nil, ErrUnknownStyle
		}
	}

	cost := len(captions)
	if !o.startOp() {
		return nil, ErrShuttingDown
	}
	charged, ok := o.ledger.Charge(cost)
	if !ok {
		o.endOp()
		o.metrics.RecordBatch(metrics.BatchRefused)
		return nil, &InsufficientCreditsError{Needed: cost, Available: o.ledger.Balance()}
	}

	// targets are fixed here for the life of the batch
	targets := make([]string, len(captions))
	images := make(map[string]models.GeneratedImage, len(captions))
	for i, c := range captions {
		targets[i] = o.catalog.ResolveTarget(c, o.rng)
		images[c] = models.PendingImage(targets[i])
	}

	source := o.session.SourceImage
	o.replaceSessionLocked(models.Session{
		SourceImage:    source,
		SelectedStyles: captions,
		Images:         images,
	}, false)

	run := newRun(newRunID(), models.RunBatch, captions, targets, cost, charged)
	ctx, cancel := context.WithCancel(o.baseCtx)
	b := &batch{run: run, cancel: cancel, epoch: o.epoch}
	o.batch = b
	o.state = models.StateGenerating
	o.genIndex = 0

	o.metrics.RecordBatch(metrics.BatchStarted)
	o.metrics.RecordDebit(charged)
	o.metrics.SetBalance(o.ledger.Balance())
	o.logger.Info("Batch started",
		zap.String("batch_id", run.ID),
		zap.Strings("styles", captions),
		zap.Strings("targets", targets),
		zap.Int("cost", cost))
	o.publishLocked()

	o.wg.Add(1)
	go o.runBatch(ctx, b, source)
	return run, nil
}

// runBatch is the sequential loop. The token is checked before every call;
// a result that resolves after cancellation is dropped.
func (o *Orchestrator) runBatch(ctx context.Context, b *batch, source models.ImageHandle) {
	run := b.run
	defer o.wg.Done()
	defer o.endOp()
	defer run.finish()
	defer b.cancel()

	for i, caption := range run.Styles {
		if ctx.Err() != nil {
			return
		}

		o.mu.Lock()
		if o.batch != b {
			o.mu.Unlock()
			return
		}
		if o.genIndex != i {
			o.genIndex = i
			o.publishLocked()
		}
		o.mu.Unlock()

		target := run.Targets[i]
		started := time.Now()
		out, err := o.transformer.Transform(ctx, imagegen.TransformRequest{
			Source:     source,
			Prompt:     styles.BatchPrompt(target),
			StyleLabel: target,
		})

		o.mu.Lock()
		if o.batch != b || ctx.Err() != nil {
			o.mu.Unlock()
			o.record(run, caption, target, started, models.OutcomeCancelled, "")
			o.logger.Debug("Discarded result of cancelled batch",
				zap.String("batch_id", run.ID), zap.String("style", caption))
			return
		}
		img, status, message := resultImage(target, out, err)
		o.session.Images[caption] = img
		if i+1 < len(run.Styles) {
			o.genIndex = i + 1
		}
		o.publishLocked()
		o.mu.Unlock()

		o.record(run, caption, target, started, status, message)
		if err != nil {
			o.logger.Warn("Batch item failed",
				zap.String("batch_id", run.ID),
				zap.String("style", caption),
				zap.String("target", target),
				zap.Error(err))
		}
	}

	o.completeBatch(b)
}

// completeBatch enters ResultsShown and archives, the only place a batch
// is archived from.
func (o *Orchestrator) completeBatch(b *batch) {
	o.mu.Lock()
	if o.batch != b {
		o.mu.Unlock()
		return
	}
	o.batch = nil
	o.state = models.StateResultsShown
	o.genIndex = -1

	archive := !o.restored && o.session.AllTerminal()
	if !o.restored && !archive {
		// a regenerate issued mid-batch is still out; it archives
		o.archivePending = true
	}
	images := o.session.Clone().Images
	source := o.session.SourceImage
	o.metrics.RecordBatch(metrics.BatchCompleted)
	o.publishLocked()
	o.mu.Unlock()

	o.logger.Info("Batch completed", zap.String("batch_id", b.run.ID))
	if archive {
		o.archive(b.run.ID, images, source)
	}
}

// CancelBatch stops the running batch and refunds everything it charged.
// The batch's results are discarded and the state returns to
// ImageUploaded. It reports false when no batch is running.
func (o *Orchestrator) CancelBatch() (refunded int, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != models.StateGenerating || o.batch == nil {
		return 0, false
	}
	refunded = o.cancelBatchLocked(models.StateImageUploaded)
	o.publishLocked()
	return refunded, true
}

// cancelBatchLocked signals the token and refunds exactly once: o.batch is
// cleared under the same lock, so no later path can see it again.
func (o *Orchestrator) cancelBatchLocked(next models.AppState) int {
	b := o.batch
	o.batch = nil
	b.cancel()
	b.run.setOutcome(OutcomeCancelled)

	if b.run.Charged > 0 {
		o.ledger.Credit(b.run.Charged)
	}
	o.metrics.RecordRefund(b.run.Charged)
	o.metrics.RecordBatch(metrics.BatchCancelled)
	o.metrics.SetBalance(o.ledger.Balance())

	// discard the batch's results but keep the photo and selection
	o.replaceSessionLocked(models.Session{
		SourceImage:    o.session.SourceImage,
		SelectedStyles: o.session.SelectedStyles,
		Images:         map[string]models.GeneratedImage{},
	}, false)
	o.state = next
	o.genIndex = -1

	o.logger.Info("Batch cancelled",
		zap.String("batch_id", b.run.ID),
		zap.Int("refunded", b.run.Charged))
	return b.run.Charged
}

// resultImage converts a transform outcome into an item.
func resultImage(caption string, out models.ImageHandle, err error) (models.GeneratedImage, string, string) {
	if err != nil {
		msg := err.Error()
		img := models.FailedImage(caption, msg)
		m, _ := img.Err()
		return img, models.OutcomeError, m
	}
	img := models.DoneImage(caption, out)
	if m, failed := img.Err(); failed {
		return img, models.OutcomeError, m
	}
	return img, models.OutcomeDone, ""
}

// dedupe drops blanks and repeats, keeping first occurrences in order.
func dedupe(captions []string) []string {
	out := make([]string, 0, len(captions))
	seen := make(map[string]bool, len(captions))
	for _, c := range captions {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
