package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
)

// maxLine caps a buffered partial line; longer lines are flushed in pieces.
const maxLine = 64 * 1024

// LineWriter turns a byte stream into one log record per line. Every chunk is also
// copied verbatim to Tee when set. It is safe for concurrent use.
type LineWriter struct {
	log    *slog.Logger
	level  slog.Level
	stream string
	tee    io.Writer

	mu  sync.Mutex
	buf []byte
}

// NewLineWriter logs lines at level with a "stream" attribute. tee may be nil.
func NewLineWriter(log *slog.Logger, level slog.Level, stream string, tee io.Writer) *LineWriter {
	if log == nil {
		log = slog.Default()
	}
	return &LineWriter{log: log, level: level, stream: stream, tee: tee}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.tee != nil {
		_, _ = w.tee.Write(p)
	}
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) >= maxLine {
		w.emit(w.buf)
		w.buf = w.buf[:0]
	}
	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(p), nil
}

// Close flushes any trailing partial line and closes Tee if it is a Closer.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
	if c, ok := w.tee.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (w *LineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	w.log.Log(context.Background(), w.level, string(line), "stream", w.stream)
}
