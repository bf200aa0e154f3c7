package policy

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Holder is the single process-wide load/reload point for the policy.
// Readers take one snapshot per request with Current and keep it for the
// whole request.
type Holder struct {
	p atomic.Pointer[Policy]
}

// NewHolder validates p and returns a holder serving it.
func NewHolder(p *Policy) (*Holder, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	h := &Holder{}
	h.p.Store(p)
	return h, nil
}

// Current returns the active snapshot.
func (h *Holder) Current() *Policy {
	return h.p.Load()
}

// Swap validates next and atomically replaces the active snapshot. An
// invalid policy leaves the current one in place.
func (h *Holder) Swap(next *Policy) error {
	if err := Validate(next); err != nil {
		return err
	}
	prev := h.p.Swap(next)
	zap.L().Info("policy: swapped",
		zap.String("from", prev.Version),
		zap.String("to", next.Version),
	)
	return nil
}

// Reload loads path and swaps it in.
func (h *Holder) Reload(path string) error {
	p, err := Load(path)
	if err != nil {
		return err
	}
	return h.Swap(p)
}

// Watch reloads path whenever it changes until ctx is done. The parent
// directory is watched so editors that replace the file are picked up.
// Bursts of events within debounce collapse into one reload.
func (h *Holder) Watch(ctx context.Context, path string, debounce time.Duration) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "policy: create watcher")
	}
	defer w.Close() //nolint:errcheck

	abs, err := filepath.Abs(path)
	if err != nil {
		return eris.Wrapf(err, "policy: resolve %s", path)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return eris.Wrapf(err, "policy: watch %s", filepath.Dir(abs))
	}

	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	log := zap.L().With(zap.String("component", "policy_watcher"), zap.String("path", abs))
	log.Info("policy: watching for changes")

	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("policy: watcher error", zap.Error(err))
		case <-timer.C:
			if err := h.Reload(abs); err != nil {
				log.Warn("policy: reload rejected, keeping current policy", zap.Error(err))
				continue
			}
			log.Info("policy: reloaded", zap.String("version", h.Current().Version))
		}
	}
}
