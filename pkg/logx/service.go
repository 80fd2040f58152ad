package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const defaultLogFile = "./reminderd.log"

type Config struct {
	Level   string
	Console bool
	// JSON writes raw JSON lines to stdout instead of the console format.
	JSON   bool
	File   FileConfig
	Alerts AlertConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// Service owns the process sinks. Apply rebuilds them and swaps the root
// that every Logger obtained from the Service reads.
type Service struct {
	mu     sync.Mutex
	root   atomic.Pointer[zerolog.Logger]
	file   *os.File
	alerts alerts
}

// New applies cfg and returns the Service together with a live Logger.
func New(cfg Config) (*Service, Logger) {
	s := &Service{}
	s.Apply(cfg)
	return s, Logger{root: s.load}
}

func (s *Service) load() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

// Close stops alert forwarding and closes the log file.
func (s *Service) Close() error {
	s.closeAlerts()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Apply replaces level and sinks. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sinks := s.reopenSinksLocked(cfg)
	if aw := s.applyAlertsLocked(cfg.Alerts); aw != nil {
		sinks = append(sinks, aw)
	}
	zl := newRoot(zerolog.MultiLevelWriter(sinks...), parseLevel(cfg.Level, zerolog.InfoLevel))
	s.root.Store(&zl)
}

// reopenSinksLocked closes any previous file and returns the writers cfg asks
// for. Stdout console output is the fallback when nothing else is enabled.
func (s *Service) reopenSinksLocked(cfg Config) []io.Writer {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var sinks []io.Writer
	switch {
	case cfg.Console && cfg.JSON:
		sinks = append(sinks, os.Stdout)
	case cfg.Console:
		sinks = append(sinks, consoleSink(os.Stdout))
	}
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(os.Stderr, "logx: %v\n", err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleSink(os.Stdout))
	}
	return sinks
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

func consoleSink(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeLayout}
}
