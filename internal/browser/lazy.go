package browser

import (
	"context"
	"fmt"
	"sync"
)

// Factory starts a renderer.
type Factory func() (Renderer, error)

// Lazy defers starting the browser until the first render. A failed start is
// remembered so later calls fail fast with ErrUnavailable.
type Lazy struct {
	factory Factory

	mu       sync.Mutex
	renderer Renderer
	err      error
	started  bool
}

// NewLazy wraps factory.
func NewLazy(factory Factory) *Lazy {
	return &Lazy{factory: factory}
}

// Render starts the browser if needed and forwards the request.
func (l *Lazy) Render(ctx context.Context, req Request) (*Page, error) {
	renderer, err := l.get()
	if err != nil {
		return nil, err
	}
	return renderer.Render(ctx, req)
}

func (l *Lazy) get() (Renderer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		l.started = true
		l.renderer, l.err = l.factory()
		if l.err != nil {
			l.err = fmt.Errorf("%w: %v", ErrUnavailable, l.err)
		}
	}
	return l.renderer, l.err
}

// Close shuts the browser down if it was started.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.renderer == nil {
		return nil
	}
	err := l.renderer.Close()
	l.renderer = nil
	l.err = fmt.Errorf("%w: closed", ErrUnavailable)
	return err
}

var _ Renderer = (*Lazy)(nil)
