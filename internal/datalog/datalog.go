// Package datalog writes every sample to a tab-separated text file.
//
// Each call to Enable starts a new file named from a user prefix and the
// local time. Lines are buffered and flushed every FlushEvery lines, so at
// most FlushEvery-1 samples are lost if the process dies.
package datalog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sweeney/tec-monitor/internal/session"
)

// FlushEvery is the number of lines written between explicit flushes.
const FlushEvery = 50

// Extension is the file extension of data logs.
const Extension = ".tsv"

// timeLayout is the timestamp embedded in file names.
const timeLayout = "2006-01-02_15-04-05.000000"

// bufferSize is large enough that lines normally reach the file only on
// an explicit flush.
const bufferSize = 64 * 1024

// ErrBadPrefix is returned by Enable for prefixes containing path separators.
var ErrBadPrefix = errors.New("datalog: prefix must not contain path separators")

// Option configures a Logger.
type Option func(*Logger)

// WithClock sets the clock used for file names.
func WithClock(c clock.Clock) Option {
	return func(l *Logger) { l.clock = c }
}

// WithLogger sets the application logger used to report write failures.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(l *Logger) { l.log = log }
}

// WithFlushEvery overrides FlushEvery.
func WithFlushEvery(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.flushEvery = n
		}
	}
}

// Logger is a session subscriber that appends samples to the current file.
// It is safe for concurrent use.
type Logger struct {
	dir        string
	clock      clock.Clock
	log        *zap.SugaredLogger
	flushEvery int

	mu      sync.Mutex
	file    *os.File
	w       *bufio.Writer
	path    string
	prefix  string
	lines   int
	flushes int
}

var _ session.Subscriber = (*Logger)(nil)

// New creates a disabled Logger writing into dir.
func New(dir string, opts ...Option) *Logger {
	l := &Logger{
		dir:        dir,
		clock:      clock.New(),
		log:        zap.NewNop().Sugar(),
		flushEvery: FlushEvery,
	}
	for _, o := range opts {
		o(l)
	}
	l.log = l.log.Named("datalog")
	return l
}

// FileName returns the name of a data log started at the clock's current
// time with the given prefix.
func (l *Logger) FileName(prefix string) string {
	name := l.clock.Now().Format(timeLayout) + Extension
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

// Enable closes any open file and starts a new one.
func (l *Logger) Enable(prefix string) error {
	if strings.ContainsAny(prefix, `/\`) {
		return ErrBadPrefix
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.closeLocked(); err != nil {
		l.log.Warnw("closing previous data log", "error", err)
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(l.dir, l.FileName(prefix))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open data log: %w", err)
	}

	l.file = f
	l.w = bufio.NewWriterSize(f, bufferSize)
	l.path = path
	l.prefix = prefix
	l.lines = 0
	l.log.Infow("logging enabled", "path", path)
	return nil
}

// Disable flushes and closes the current file. It is a no-op when logging
// is already disabled.
func (l *Logger) Disable() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

// Close is Disable; it lets a Session close the logger on shutdown.
func (l *Logger) Close() error {
	return l.Disable()
}

func (l *Logger) closeLocked() error {
	if l.file == nil {
		return nil
	}
	err := multierr.Combine(l.w.Flush(), l.file.Close())
	l.log.Infow("logging disabled", "path", l.path, "lines", l.lines)
	l.file = nil
	l.w = nil
	return err
}

// OnSample appends one line when logging is enabled. A write failure is
// reported and disables logging; it never propagates to the poll loop.
func (l *Logger) OnSample(s session.Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	if err := l.writeLocked(s); err != nil {
		l.log.Errorw("data log write failed, logging disabled", "path", l.path, "error", err)
		if cerr := l.closeLocked(); cerr != nil {
			l.log.Warnw("closing failed data log", "error", cerr)
		}
	}
}

func (l *Logger) writeLocked(s session.Sample) error {
	if _, err := l.w.Write(FormatLine(s)); err != nil {
		return err
	}
	l.lines++
	if l.lines%l.flushEvery == 0 {
		if err := l.w.Flush(); err != nil {
			return err
		}
		l.flushes++
	}
	return nil
}

// FormatLine renders a sample as
// unix_timestamp, set_point, temperature1, temperature2, output
// separated by tabs and terminated by a newline.
func FormatLine(s session.Sample) []byte {
	b := make([]byte, 0, 64)
	b = strconv.AppendFloat(b, float64(s.Timestamp.UnixMicro())/1e6, 'f', 6, 64)
	for _, v := range []float64{s.SetPoint, s.Temperature1, s.Temperature2, s.Output} {
		b = append(b, '\t')
		b = strconv.AppendFloat(b, v, 'f', -1, 64)
	}
	return append(b, '\n')
}

// Enabled reports whether a file is open.
func (l *Logger) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}

// Path returns the current or most recent file path.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Prefix returns the prefix of the current or most recent file.
func (l *Logger) Prefix() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prefix
}

// Lines returns the number of lines written to the current file.
func (l *Logger) Lines() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lines
}

// Flushes returns the number of periodic flushes since New.
func (l *Logger) Flushes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushes
}
