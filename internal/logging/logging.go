// Package logging builds the component loggers used across parkd.
//
// Every component logs through a stdlib *log.Logger with a bracketed
// prefix ("[reconcile] ", "[lots] "). Output goes to stderr and, when a
// log file is configured, to a size-rotated file as well.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls log output.
type Config struct {
	// File is the rotated log file. Empty disables file output.
	File string
	// MaxSizeMB is the size at which the file is rotated.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept.
	MaxBackups int
	// MaxAgeDays removes rotated files older than this.
	MaxAgeDays int
	// Quiet drops the stderr copy. File output is unaffected.
	Quiet bool
}

// Logs owns the shared writer behind all component loggers.
type Logs struct {
	w    io.Writer
	file *lumberjack.Logger
}

// Open prepares the shared writer. The log directory is created if needed.
func Open(cfg Config) (*Logs, error) {
	var writers []io.Writer
	if !cfg.Quiet {
		writers = append(writers, os.Stderr)
	}

	l := &Logs{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, err
		}
		l.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
		}
		writers = append(writers, l.file)
	}

	switch len(writers) {
	case 0:
		l.w = io.Discard
	case 1:
		l.w = writers[0]
	default:
		l.w = io.MultiWriter(writers...)
	}
	return l, nil
}

// Discard returns Logs that write nowhere.
func Discard() *Logs {
	return &Logs{w: io.Discard}
}

// For returns a logger prefixed with "[component] ".
func (l *Logs) For(component string) *log.Logger {
	return log.New(l.w, "["+component+"] ", log.LstdFlags)
}

// Writer returns the shared writer.
func (l *Logs) Writer() io.Writer {
	return l.w
}

// Close flushes and closes the log file, if any.
func (l *Logs) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
