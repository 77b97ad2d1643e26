package logging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Collaborator receives diagnostics from the dispatch path. Implementations
// must not block the caller.
type Collaborator interface {
	Log(level slog.Level, source, message string)
}

// Discard drops every message.
type Discard struct{}

func (Discard) Log(slog.Level, string, string) {}

// slogCollaborator forwards messages to a Logger.
type slogCollaborator struct {
	logger *Logger
}

// NewCollaborator writes collaborator messages through logger. It is
// synchronous; wrap it in NewAsync for the dispatch path.
func NewCollaborator(logger *Logger) Collaborator {
	return &slogCollaborator{logger: logger}
}

func (c *slogCollaborator) Log(level slog.Level, source, message string) {
	c.logger.LogAttrs(context.Background(), level, message, Source(source))
}

type entry struct {
	level   slog.Level
	source  string
	message string
}

// Async hands messages to a background goroutine through a bounded buffer.
// When the buffer is full the message is dropped and counted.
type Async struct {
	next    Collaborator
	entries chan entry
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Int64
}

// NewAsync starts the forwarding goroutine. buffer < 1 is treated as 1.
func NewAsync(next Collaborator, buffer int) *Async {
	if buffer < 1 {
		buffer = 1
	}
	a := &Async{
		next:    next,
		entries: make(chan entry, buffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Log(level slog.Level, source, message string) {
	select {
	case <-a.closing:
		a.dropped.Add(1)
		return
	default:
	}

	select {
	case a.entries <- entry{level: level, source: source, message: message}:
	default:
		a.dropped.Add(1)
	}
}

func (a *Async) run() {
	defer close(a.done)
	for {
		select {
		case e := <-a.entries:
			a.next.Log(e.level, e.source, e.message)
		case <-a.closing:
			for {
				select {
				case e := <-a.entries:
					a.next.Log(e.level, e.source, e.message)
				default:
					return
				}
			}
		}
	}
}

// Dropped is the number of messages discarded so far.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting messages, flushes what is buffered and waits for
// the goroutine to exit. It is safe to call more than once.
func (a *Async) Close() {
	a.once.Do(func() { close(a.closing) })
	<-a.done
}
