package orchestrator

import (
	"time"

	"alterego/imagegen"
	"alterego/models"
	"alterego/styles"

	"go.uber.org/zap"
)

// Regenerate retries one finished item of the active session for one
// credit. It works in any state and is never refunded, even on failure.
// A wildcard item draws a fresh target on every call.
func (o *Orchestrator) Regenerate(caption string) (*Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil, ErrClosed
	}
	img, ok := o.session.Images[caption]
	if !ok {
		return nil, ErrUnknownItem
	}
	if !img.IsTerminal() {
		return nil, ErrItemPending
	}
	if o.session.SourceImage == "" {
		return nil, ErrNoImage
	}

	if !o.startOp() {
		return nil, ErrShuttingDown
	}
	charged, ok := o.ledger.Charge(1)
	if !ok {
		o.endOp()
		return nil, &InsufficientCreditsError{Needed: 1, Available: o.ledger.Balance()}
	}

	target := o.catalog.ResolveTarget(caption, o.rng)
	run := newRun(newRunID(), models.RunRegenerate, []string{caption}, []string{target}, 1, charged)
	o.session.Images[caption] = models.PendingImage(target)

	o.metrics.RecordDebit(charged)
	o.metrics.SetBalance(o.ledger.Balance())
	o.logger.Info("Regenerate started",
		zap.String("run_id", run.ID),
		zap.String("style", caption),
		zap.String("target", target))
	o.publishLocked()

	o.wg.Add(1)
	go o.runRegenerate(run, o.epoch, o.session.SourceImage)
	return run, nil
}

// runRegenerate writes its result only if the session it was issued
// against is still active.
func (o *Orchestrator) runRegenerate(run *Run, epoch uint64, source models.ImageHandle) {
	defer o.wg.Done()
	defer o.endOp()
	defer run.finish()

	caption, target := run.Styles[0], run.Targets[0]
	started := time.Now()
	out, err := o.transformer.Transform(o.baseCtx, imagegen.TransformRequest{
		Source:     source,
		Prompt:     styles.RegeneratePrompt(target),
		StyleLabel: target,
	})

	o.mu.Lock()
	if o.epoch != epoch || o.baseCtx.Err() != nil {
		o.mu.Unlock()
		run.setOutcome(OutcomeSuperseded)
		o.record(run, caption, target, started, models.OutcomeCancelled, "")
		o.logger.Debug("Discarded regenerate for replaced session", zap.String("run_id", run.ID))
		return
	}
	img, status, message := resultImage(target, out, err)
	o.session.Images[caption] = img

	archive := o.archivePending && o.session.AllTerminal()
	if archive {
		o.archivePending = false
	}
	images := o.session.Clone().Images
	o.publishLocked()
	o.mu.Unlock()

	o.record(run, caption, target, started, status, message)
	if err != nil {
		o.logger.Warn("Regenerate failed",
			zap.String("run_id", run.ID),
			zap.String("style", caption),
			zap.Error(err))
	}
	if archive {
		o.archive(run.ID, images, source)
	}
}
