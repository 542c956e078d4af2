package cameras

import (
	"context"
	"os"
	"path/filepath"

	"github.com/camstream/camstream/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

// FileSource reads the camera list from a JSON file.
type FileSource struct {
	path string
}

func NewFileSource(path string) *FileSource { return &FileSource{path: path} }

func (s *FileSource) List(context.Context) ([]Camera, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

func (s *FileSource) String() string { return s.path }

// Watch calls fn with the current list and then with the new one on every
// change of the file until ctx is done. The directory is watched so editors
// replacing the file are noticed too.
func (s *FileSource) Watch(ctx context.Context, fn func([]Camera), log *logger.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err = watcher.Add(filepath.Dir(s.path)); err != nil {
		return err
	}
	name := filepath.Clean(s.path)
	if list, err := s.List(ctx); err == nil {
		fn(list)
	} else {
		log.Error().Err(err).Msgf("Camera list %v", s.path)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			list, err := s.List(ctx)
			if err != nil {
				log.Warn().Err(err).Msgf("Camera list %v", s.path)
				continue
			}
			fn(list)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Camera list watch")
		}
	}
}
