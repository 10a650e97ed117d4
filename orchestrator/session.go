package orchestrator

import (
	"cmp"
	"maps"
	"slices"

	"alterego/models"
	"alterego/styles"

	"go.uber.org/zap"
)

// UploadImage starts a new working session around handle. It is refused
// while a batch runs. The selection resets to the default offer.
func (o *Orchestrator) UploadImage(handle models.ImageHandle) error {
	if !handle.Valid() {
		return ErrInvalidImage
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if o.state == models.StateGenerating {
		return ErrInvalidState
	}

	o.offer = o.catalog.Defaults()
	s := o.emptySession(handle)
	s.SelectedStyles = styles.Captions(o.offer)
	o.replaceSessionLocked(s, false)
	o.state = models.StateImageUploaded
	o.genIndex = -1
	o.publishLocked()
	return nil
}

// SelectStyles replaces the selection. Every caption must be in the
// current offer.
func (o *Orchestrator) SelectStyles(captions []string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == models.StateGenerating {
		return ErrInvalidState
	}
	captions = dedupe(captions)
	for _, c := range captions {
		if !o.offeredLocked(c) {
			return ErrUnknownStyle
		}
	}
	o.session.SelectedStyles = captions
	o.publishLocked()
	return nil
}

// ToggleStyle flips caption in the selection and reports whether it is now
// selected.
func (o *Orchestrator) ToggleStyle(caption string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == models.StateGenerating {
		return false, ErrInvalidState
	}
	if !o.offeredLocked(caption) {
		return false, ErrUnknownStyle
	}

	sel := o.session.SelectedStyles
	if i := slices.Index(sel, caption); i >= 0 {
		o.session.SelectedStyles = slices.Delete(slices.Clone(sel), i, i+1)
		o.publishLocked()
		return false, nil
	}
	o.session.SelectedStyles = append(slices.Clone(sel), caption)
	o.publishLocked()
	return true, nil
}

// ShuffleStyles replaces the offer with fresh pool styles plus the
// wildcard and selects all of them.
func (o *Orchestrator) ShuffleStyles() ([]styles.Style, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == models.StateGenerating {
		return nil, ErrInvalidState
	}
	o.offer = o.catalog.Shuffle(styles.Captions(o.offer), o.rng)
	o.session.SelectedStyles = styles.Captions(o.offer)
	o.publishLocked()
	return slices.Clone(o.offer), nil
}

func (o *Orchestrator) offeredLocked(caption string) bool {
	return slices.ContainsFunc(o.offer, func(s styles.Style) bool { return s.Caption == caption })
}

// ResetSession clears the working session and returns to Idle. It is valid
// from ImageUploaded and ResultsShown only and leaves credits, history and
// favorites alone.
func (o *Orchestrator) ResetSession() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != models.StateImageUploaded && o.state != models.StateResultsShown {
		return false
	}
	o.offer = o.catalog.Defaults()
	o.replaceSessionLocked(o.emptySession(""), false)
	o.state = models.StateIdle
	o.genIndex = -1
	o.publishLocked()
	return true
}

// RestoreSession shows a history entry as the working session. It is valid
// from any state; a running batch is cancelled first, with its refund.
// The restored session is never archived again.
func (o *Orchestrator) RestoreSession(h models.HistorySession) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if o.batch != nil {
		o.cancelBatchLocked(models.StateImageUploaded)
	}

	images := make(map[string]models.GeneratedImage, len(h.Images))
	for k, img := range h.Images {
		// an archived item can never finish; surface it as failed so it
		// can be regenerated
		if !img.IsTerminal() {
			img = models.FailedImage(img.Caption(), "")
		}
		images[k] = img
	}
	captions := o.orderCaptions(slices.Collect(maps.Keys(images)))

	offer := make([]styles.Style, len(captions))
	for i, c := range captions {
		offer[i] = o.catalog.Resolve(c)
	}
	o.offer = offer
	o.replaceSessionLocked(models.Session{
		SourceImage:    h.SourceImage,
		SelectedStyles: captions,
		Images:         images,
	}, true)
	o.state = models.StateResultsShown
	o.genIndex = -1

	o.logger.Info("Session restored",
		zap.Int64("timestamp", h.Timestamp),
		zap.Int("images", len(images)))
	o.publishLocked()
	return nil
}

// orderCaptions sorts catalog captions by catalog position, followed by
// unknown captions alphabetically. History entries carry no selection
// order of their own.
func (o *Orchestrator) orderCaptions(captions []string) []string {
	rank := make(map[string]int)
	for i, c := range append(o.catalog.DefaultCaptions(), styles.Captions(o.catalog.Pool())...) {
		if _, ok := rank[c]; !ok {
			rank[c] = i
		}
	}
	slices.SortFunc(captions, func(a, b string) int {
		ra, okA := rank[a]
		rb, okB := rank[b]
		switch {
		case okA && okB:
			return cmp.Compare(ra, rb)
		case okA:
			return -1
		case okB:
			return 1
		default:
			return cmp.Compare(a, b)
		}
	})
	return captions
}
