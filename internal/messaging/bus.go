package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrNoHandler is returned by Request when nothing handles the action.
	ErrNoHandler = errors.New("no handler for action")

	// ErrBusClosed is returned after Close.
	ErrBusClosed = errors.New("bus closed")
)

// Handler processes one message and returns the reply. One-way messages
// may return a nil reply.
type Handler func(ctx context.Context, m Message) (Message, error)

// Bus is an in-process asynchronous request/response channel between
// surfaces. Every delivery runs in its own goroutine.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[Action]Handler
	subs     map[Action][]chan Message
	closed   bool
	wg       sync.WaitGroup
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) BusOption {
	return func(b *Bus) {
		b.logger = l
	}
}

// NewBus creates an empty Bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		handlers: make(map[Action]Handler),
		subs:     make(map[Action][]chan Message),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Handle registers h for action, replacing any previous handler.
func (b *Bus) Handle(action Action, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[action] = h
}

// Handles reports whether a handler is registered for action.
func (b *Bus) Handles(action Action) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[action]
	return ok
}

// Request delivers m to its handler and waits for the reply or for ctx to
// end. A handler still running when ctx ends finishes in the background.
func (b *Bus) Request(ctx context.Context, m Message) (Message, error) {
	b.mu.RLock()
	h, ok := b.handlers[m.Action()]
	closed := b.closed
	if ok && !closed {
		b.wg.Add(1)
	}
	b.mu.RUnlock()

	if closed {
		return nil, ErrBusClosed
	}
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoHandler, m.Action())
	}

	type reply struct {
		msg Message
		err error
	}
	done := make(chan reply, 1)
	go func() {
		defer b.wg.Done()
		msg, err := h(ctx, m)
		done <- reply{msg: msg, err: err}
	}()

	select {
	case r := <-done:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Post delivers m without waiting: subscribers receive it and the handler,
// if any, runs with its reply discarded. Slow subscribers miss messages
// rather than block the sender.
func (b *Bus) Post(m Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.subs[m.Action()] {
		select {
		case ch <- m:
		default:
			b.logger.Warn("dropping message for slow subscriber", "action", string(m.Action()))
		}
	}

	h, ok := b.handlers[m.Action()]
	if !ok {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if _, err := h(context.Background(), m); err != nil {
			b.logger.Warn("posted message handler failed", "action", string(m.Action()), "error", err)
		}
	}()
}

// Subscribe returns a channel receiving every posted message with the
// given action, and a function that ends the subscription.
func (b *Bus) Subscribe(action Action, buffer int) (<-chan Message, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Message, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[action] = append(b.subs[action], ch)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.removeSub(action, ch)
		})
	}
}

func (b *Bus) removeSub(action Action, ch chan Message) {
	subs := b.subs[action]
	for i, c := range subs {
		if c == ch {
			b.subs[action] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close waits for running handlers and closes every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()

	b.mu.Lock()
	defer b.mu.Unlock()
	for action, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, action)
	}
}
