package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

const writerQueue = 256

var errWriterClosed = errors.New("logger: writer closed")

// op is one unit of work for the writer goroutine: a line to write, or a
// flush request when ack is set.
type op struct {
	line []byte
	ack  chan error
}

// asyncWriter serializes log lines onto its sinks from one goroutine.
// The first sink error sticks and is returned by later calls.
type asyncWriter struct {
	ops  chan op
	done chan struct{}

	mu     sync.RWMutex
	closed bool

	sinks []*bufio.Writer

	failMu sync.Mutex
	fail   error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = writerBuffer
	}
	w := &asyncWriter{ops: make(chan op, writerQueue), done: make(chan struct{})}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.run()
	return w
}

func (w *asyncWriter) run() {
	defer close(w.done)
	for o := range w.ops {
		if o.ack != nil {
			o.ack <- w.flush()
			continue
		}
		w.record(w.emit(o.line))
	}
	w.record(w.flush())
}

// submit queues o unless the writer is closed; it blocks while the queue
// is full.
func (w *asyncWriter) submit(o op) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	w.ops <- o
	return true
}

// Write queues a copy of p.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.failure(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	if !w.submit(op{line: append([]byte(nil), p...)}) {
		return errWriterClosed
	}
	return nil
}

// Flush returns once every line queued before it reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	if !w.submit(op{ack: ack}) {
		return w.failure()
	}
	return <-ack
}

// Close drains the queue and returns the first sink error.
func (w *asyncWriter) Close() error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.ops)
	}
	w.mu.Unlock()
	<-w.done
	return w.failure()
}

// emit writes one line through to every sink; a line is never left half
// buffered.
func (w *asyncWriter) emit(line []byte) error {
	for _, s := range w.sinks {
		if _, err := s.Write(line); err != nil {
			return err
		}
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flush() error {
	var errs []error
	for _, s := range w.sinks {
		errs = append(errs, s.Flush())
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) failure() error {
	w.failMu.Lock()
	defer w.failMu.Unlock()
	return w.fail
}

func (w *asyncWriter) record(err error) {
	if err == nil {
		return
	}
	w.failMu.Lock()
	if w.fail == nil {
		w.fail = err
	}
	w.failMu.Unlock()
}
