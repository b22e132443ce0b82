package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrFileTooLarge is returned when an upload exceeds ServiceConfig.MaxFileSize.
	ErrFileTooLarge = errors.New("file too large")

	// ErrRunNotFound is returned for unknown or expired run IDs.
	ErrRunNotFound = errors.New("run not found")
)

// Defaults for ServiceConfig zero values.
const (
	DefaultMaxFileSize  int64 = 50 * 1024 * 1024
	DefaultTimeout            = 10 * time.Minute
	DefaultRunRetention       = time.Hour
)

// ServiceConfig tunes the import service.
type ServiceConfig struct {
	MaxFileSize   int64
	MaxConcurrent int
	MaxWaitTime   time.Duration
	Timeout       time.Duration // Per-run limit; the run commits what it processed
	RunRetention  time.Duration // How long results stay available through Run
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RunRetention <= 0 {
		c.RunRetention = DefaultRunRetention
	}
	return c
}

// Service is the entry point used by the HTTP API: it bounds concurrency,
// reads uploaded files, runs imports and keeps recent results.
type Service struct {
	importer *Importer
	limiter  *ImportLimiter
	cfg      ServiceConfig
	logger   *slog.Logger

	mu   sync.RWMutex
	runs map[string]*Result
}

// NewService creates a Service backed by store.
func NewService(store Store, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Service{
		importer: NewImporter(store, logger),
		limiter:  NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
		cfg:      cfg,
		logger:   logger,
		runs:     make(map[string]*Result),
	}
}

// Profiles returns the registered import profiles.
func (s *Service) Profiles() []Profile {
	return All()
}

// MaxFileSize returns the upload size limit in bytes.
func (s *Service) MaxFileSize() int64 {
	return s.cfg.MaxFileSize
}

// Import reads r as fileName and imports it with the named profile.
//
// Run-fatal problems (unknown profile, unreadable file, missing key column,
// busy service) return a nil Result. Otherwise the Result is stored for
// later retrieval through Run, even when the commit failed.
func (s *Service) Import(ctx context.Context, profileKey string, fileName string, r io.Reader, opts Options) (*Result, error) {
	p, err := Lookup(profileKey)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSource, err)
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.cfg.MaxFileSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrUnreadableSource)
	}

	sheet, err := ReadSource(fileName, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	result, err := s.importer.Import(runCtx, Run{
		ID:       uuid.NewString(),
		FileName: fileName,
		Profile:  p,
		Sheet:    sheet,
		Options:  opts,
	})
	if result != nil {
		s.remember(result)
	}
	return result, err
}

// Run returns a recent run's result.
func (s *Service) Run(runID string) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, nil
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// WaitForImports blocks until running imports finish or ctx is done.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// remember stores a result and forgets it after the retention period.
func (s *Service) remember(r *Result) {
	s.mu.Lock()
	s.runs[r.RunID] = r
	s.mu.Unlock()

	time.AfterFunc(s.cfg.RunRetention, func() {
		s.mu.Lock()
		delete(s.runs, r.RunID)
		s.mu.Unlock()
	})
}
