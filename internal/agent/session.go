package agent

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/autopeer-io/seatlink/pkg/log"
)

// ApplyFunc installs a freshly loaded session configuration.
type ApplyFunc func(ctx context.Context, raw map[string]any) error

// SessionSource reads the session configuration (robots list and current
// set) from a YAML, JSON or TOML file and re-applies it whenever the file
// changes.
type SessionSource struct {
	path  string
	v     *viper.Viper
	apply ApplyFunc
	log   log.Logger
}

func NewSessionSource(path string, apply ApplyFunc, logger log.Logger) *SessionSource {
	v := viper.New()
	v.SetConfigFile(path)
	return &SessionSource{
		path:  filepath.Clean(path),
		v:     v,
		apply: apply,
		log:   logger.WithName("session"),
	}
}

// Load reads the file and returns its settings. Keys come back lowercased.
func (s *SessionSource) Load() (map[string]any, error) {
	if err := s.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read session config %s: %w", s.path, err)
	}
	return s.v.AllSettings(), nil
}

// Apply loads the file and hands it to the ApplyFunc.
func (s *SessionSource) Apply(ctx context.Context) error {
	raw, err := s.Load()
	if err != nil {
		return err
	}
	return s.apply(ctx, raw)
}

// Start watches the file until ctx is done. A reload that fails is logged
// and the running session stays in place.
func (s *SessionSource) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: editors and config management replace the file
	// rather than write it in place.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", s.path, err)
	}
	s.log.Info("Watching session config", "path", s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Error(err, "Session config watcher error")
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(e.Name) != s.path || !e.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			s.log.Info("Session config changed, reloading", "op", e.Op.String())
			if err := s.Apply(ctx); err != nil {
				s.log.Error(err, "Session reload failed, keeping the current session")
			}
		}
	}
}
