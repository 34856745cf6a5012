package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// Reader is a pull-based, finite, non-restartable sequence of text increments.
// Recv returns io.EOF once the sequence completed normally; any other error is terminal.
type Reader interface {
	Recv() (string, error)
	Close() error
}

// Status is the terminal state of a drained stream.
type Status string

const (
	Completed Status = "completed"
	Failed    Status = "failed"
	Cancelled Status = "cancelled"
)

// ErrClosed is returned by Recv after the consumer closed the reader.
var ErrClosed = errors.New("stream closed")

// Drain pulls increments in arrival order and hands each to fn. It always closes r.
// Cancellation of ctx, or fn returning a context error, ends the stream as Cancelled.
func Drain(ctx context.Context, r Reader, fn func(string) error) (Status, error) {
	defer r.Close()
	for {
		if err := ctx.Err(); err != nil {
			return Cancelled, err
		}
		text, err := r.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Completed, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Cancelled, ctxErr
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
				return Cancelled, err
			}
			return Failed, err
		}
		if text == "" {
			continue
		}
		if fn != nil {
			if err := fn(text); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return Cancelled, err
				}
				return Failed, err
			}
		}
	}
}

// Collect concatenates every increment. The partial text is returned along with any error.
func Collect(ctx context.Context, r Reader) (string, Status, error) {
	var b strings.Builder
	status, err := Drain(ctx, r, func(s string) error {
		b.WriteString(s)
		return nil
	})
	return b.String(), status, err
}

type sliceReader struct {
	parts []string
	err   error
	pos   int
}

// FromSlice yields parts in order, then terminates with err (io.EOF when nil).
func FromSlice(parts []string, err error) Reader {
	if err == nil {
		err = io.EOF
	}
	return &sliceReader{parts: parts, err: err}
}

func (s *sliceReader) Recv() (string, error) {
	if s.pos < len(s.parts) {
		s.pos++
		return s.parts[s.pos-1], nil
	}
	return "", s.err
}

func (s *sliceReader) Close() error { return nil }

type pipeMsg struct {
	text string
	err  error
}

// Pipe is an in-memory Reader fed by a producer goroutine.
type Pipe struct {
	ch       chan pipeMsg
	done     chan struct{}
	once     sync.Once
	finished sync.Once
	final    error
}

func NewPipe(buffer int) *Pipe {
	return &Pipe{ch: make(chan pipeMsg, buffer), done: make(chan struct{})}
}

// Send delivers one increment. It reports false once the reader was closed.
func (p *Pipe) Send(text string) bool {
	select {
	case p.ch <- pipeMsg{text: text}:
		return true
	case <-p.done:
		return false
	}
}

// Finish ends the stream; a nil err completes it normally.
func (p *Pipe) Finish(err error) {
	if err == nil {
		err = io.EOF
	}
	p.finished.Do(func() {
		select {
		case p.ch <- pipeMsg{err: err}:
		case <-p.done:
		}
	})
}

func (p *Pipe) Recv() (string, error) {
	if p.final != nil {
		return "", p.final
	}
	select {
	case msg := <-p.ch:
		if msg.err != nil {
			p.final = msg.err
			return "", msg.err
		}
		return msg.text, nil
	case <-p.done:
		return "", ErrClosed
	}
}

func (p *Pipe) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
