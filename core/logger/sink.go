package logger

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
)

var errSinkClosed = errors.New("logger: sink closed")

// sink copies log lines to its outputs from one goroutine. Lines are
// buffered and flushed whenever the queue runs dry.
type sink struct {
	lines   chan []byte
	flushes chan chan error
	done    chan struct{}

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error

	outs []*bufio.Writer
}

func newSink(bufSize int, outs ...io.Writer) *sink {
	if bufSize <= 0 {
		bufSize = 64 << 10
	}
	s := &sink{
		lines:   make(chan []byte, 256),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
	}
	for _, w := range outs {
		if w != nil {
			s.outs = append(s.outs, bufio.NewWriterSize(w, bufSize))
		}
	}
	go s.run()
	return s
}

func (s *sink) run() {
	defer close(s.done)
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				s.fail(s.flushAll())
				return
			}
			s.fail(s.write(line))
			if len(s.lines) == 0 {
				s.fail(s.flushAll())
			}
		case ack := <-s.flushes:
			ack <- s.flushAll()
		}
	}
}

// Write queues a copy of p. It blocks while the queue is full.
func (s *sink) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errSinkClosed
	}
	if err := s.failure(); err != nil {
		return 0, err
	}
	if len(p) > 0 {
		s.lines <- bytes.Clone(p)
	}
	return len(p), nil
}

// Flush waits until every queued line reached the outputs.
func (s *sink) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return s.failure()
	}
	ack := make(chan error, 1)
	s.flushes <- ack
	return <-ack
}

// Close drains the queue and returns the first write error seen.
func (s *sink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.lines)
	}
	s.mu.Unlock()
	<-s.done
	return s.failure()
}

func (s *sink) write(line []byte) error {
	for _, w := range s.outs {
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func (s *sink) flushAll() error {
	var errs []error
	for _, w := range s.outs {
		errs = append(errs, w.Flush())
	}
	return errors.Join(errs...)
}

func (s *sink) fail(err error) {
	if err == nil {
		return
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *sink) failure() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}
