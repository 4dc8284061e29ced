// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogManager handles log configuration with safe runtime reconfiguration.
type LogManager struct {
	out         *switchWriter
	version     string
	mu          sync.Mutex
	initialized atomic.Bool
}

func NewLogManager(version string) *LogManager {
	return &LogManager{
		out:     &switchWriter{w: baseLogWriter()},
		version: version,
	}
}

// Initialize points the global logger at the manager's writer. Only the first
// call has an effect.
func (lm *LogManager) Initialize() {
	if lm.initialized.Swap(true) {
		return
	}
	log.Logger = log.Logger.Output(lm.out).Level(zerolog.TraceLevel).With().Str("version", lm.version).Logger()
}

// Apply sets the global level and, when logPath is set, tees output into a
// rotated file.
func (lm *LogManager) Apply(level, logPath string, maxSize, maxBackups int) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	setLogLevel(level)

	writer, closer, err := buildWriter(baseLogWriter(), logPath, maxSize, maxBackups)
	if err != nil {
		return err
	}

	if old := lm.out.swap(writer, closer); old != nil {
		if closeErr := old.Close(); closeErr != nil {
			log.Debug().Err(closeErr).Msg("Failed to close old log rotator")
		}
	}

	return nil
}

// Close releases the log file, if any.
func (lm *LogManager) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if old := lm.out.swap(baseLogWriter(), nil); old != nil {
		return old.Close()
	}
	return nil
}

func buildWriter(base io.Writer, logPath string, maxSize, maxBackups int) (io.Writer, io.Closer, error) {
	if logPath == "" {
		return base, nil, nil
	}

	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	if maxSize <= 0 {
		maxSize = 50
	}
	if maxBackups < 0 {
		maxBackups = 0
	}

	rotator := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}
	return io.MultiWriter(base, rotator), rotator, nil
}

func baseLogWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
}

func setLogLevel(level string) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

type switchWriter struct {
	mu     sync.RWMutex
	w      io.Writer
	closer io.Closer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *switchWriter) swap(w io.Writer, closer io.Closer) io.Closer {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.closer
	s.w = w
	s.closer = closer
	return old
}
