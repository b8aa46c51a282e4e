package docker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	"berth/internal/observed"
)

const logLineBuffer = 64

// logReader pumps a daemon log body into lines on a background goroutine.
// Non-TTY bodies are multiplexed and split with stdcopy.
type logReader struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	body   io.ReadCloser

	lines chan observed.LogLine
	err   error // set before lines is closed

	once sync.Once
}

func newLogReader(ctx context.Context, cancel context.CancelFunc, id string, body io.ReadCloser, tty bool) *logReader {
	lr := &logReader{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		body:   body,
		lines:  make(chan observed.LogLine, logLineBuffer),
	}
	go lr.pump(tty)
	return lr
}

func (l *logReader) pump(tty bool) {
	stdout := &lineWriter{emit: l.emitter("stdout")}
	stderr := &lineWriter{emit: l.emitter("stderr")}

	var err error
	if tty {
		_, err = io.Copy(stdout, l.body)
	} else {
		_, err = stdcopy.StdCopy(stdout, stderr, l.body)
	}
	stdout.flush()
	stderr.flush()

	switch {
	case l.ctx.Err() != nil:
		err = l.ctx.Err()
	case err == nil, errors.Is(err, io.EOF):
		err = io.EOF
	default:
		err = classify("logs", l.id, err)
	}
	l.err = err
	close(l.lines)
}

func (l *logReader) emitter(stream string) func([]byte) error {
	return func(raw []byte) error {
		line := parseLogLine(l.id, stream, raw)
		select {
		case l.lines <- line:
			return nil
		case <-l.ctx.Done():
			return l.ctx.Err()
		}
	}
}

func (l *logReader) Next() (observed.LogLine, error) {
	line, ok := <-l.lines
	if !ok {
		return observed.LogLine{}, l.err
	}
	return line, nil
}

func (l *logReader) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		err = l.body.Close()
	})
	return err
}

// parseLogLine splits the RFC 3339 timestamp the daemon prefixes to each
// line when timestamps are requested.
func parseLogLine(id, stream string, raw []byte) observed.LogLine {
	text := strings.TrimRight(string(raw), "\r")
	line := observed.LogLine{ContainerID: id, Stream: stream, Text: text}
	head, rest, _ := strings.Cut(text, " ")
	if ts, err := time.Parse(time.RFC3339Nano, head); err == nil {
		line.Timestamp, line.Text = ts, rest
	}
	return line
}

// lineWriter buffers writes and emits complete lines without the newline.
type lineWriter struct {
	buf  bytes.Buffer
	emit func([]byte) error
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return len(p), nil
		}
		line := append([]byte(nil), data[:i]...)
		w.buf.Next(i + 1)
		if err := w.emit(line); err != nil {
			return 0, err
		}
	}
}

func (w *lineWriter) flush() {
	if w.buf.Len() == 0 {
		return
	}
	_ = w.emit(append([]byte(nil), w.buf.Bytes()...))
	w.buf.Reset()
}
