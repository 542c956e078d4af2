package cameras

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/camstream/camstream/pkg/logger"
)

// Watcher keeps the camera list up to date. It loads the list once on Run
// and then follows the file changes or polls the source.
type Watcher struct {
	source   Source
	interval time.Duration
	onChange func([]Camera)
	log      *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher makes a watcher of the source. The interval is used to poll
// sources that can't be watched, zero disables polling.
func NewWatcher(source Source, interval time.Duration, onChange func([]Camera), log *logger.Logger) *Watcher {
	return &Watcher{source: source, interval: interval, onChange: onChange, log: log}
}

// Load reads the list once.
func (w *Watcher) Load(ctx context.Context) error {
	list, err := w.source.List(ctx)
	if err != nil {
		return err
	}
	w.log.Info().Msgf("Got %v cameras from %v", len(list), w.source)
	w.onChange(list)
	return nil
}

func (w *Watcher) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if s, ok := w.source.(*FileSource); ok {
			if err := s.Watch(ctx, w.onChange, w.log); err != nil {
				w.log.Error().Err(err).Msg("Camera list watch")
			}
			return
		}
		if err := w.Load(ctx); err != nil {
			w.log.Error().Err(err).Msg("Camera list")
		}
		w.poll(ctx)
	}()
}

func (w *Watcher) poll(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Load(ctx); err != nil {
				w.log.Warn().Err(err).Msg("Camera list")
			}
		}
	}
}

func (w *Watcher) Shutdown(context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) String() string { return fmt.Sprintf("cameras::%v", w.source) }
