// Package lifecycle wires late-arriving collaborators into the render
// service. Whoever finishes connecting the content index or the byte storage
// announces it on an event bus; the Binder hands each one to the service
// exactly once, in whatever order they arrive.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelstyle/internal/render"
)

const (
	TopicContentIndexReady = "content_index:ready"
	TopicByteStorageReady  = "byte_storage:ready"
)

// Target receives the collaborators. render.Service implements it.
type Target interface {
	BindContentIndex(render.ContentIndex) error
	BindByteStorage(render.ByteStorage) error
}

type Binder struct {
	bus    evbus.Bus
	target Target
	logger *zap.Logger

	onIndex   func(render.ContentIndex)
	onStorage func(render.ByteStorage)

	mu      sync.Mutex
	pending int
	errs    []error
	ready   chan struct{}
}

func NewBinder(bus evbus.Bus, target Target, logger *zap.Logger) (*Binder, error) {
	if bus == nil || target == nil {
		return nil, errors.New("binder requires a bus and a target")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &Binder{
		bus:     bus,
		target:  target,
		logger:  logger,
		pending: 2,
		ready:   make(chan struct{}),
	}
	b.onIndex = func(index render.ContentIndex) {
		b.settle("content index", target.BindContentIndex(index))
	}
	b.onStorage = func(storage render.ByteStorage) {
		b.settle("byte storage", target.BindByteStorage(storage))
	}

	if err := bus.SubscribeOnce(TopicContentIndexReady, b.onIndex); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", TopicContentIndexReady, err)
	}
	if err := bus.SubscribeOnce(TopicByteStorageReady, b.onStorage); err != nil {
		_ = bus.Unsubscribe(TopicContentIndexReady, b.onIndex)
		return nil, fmt.Errorf("subscribe %s: %w", TopicByteStorageReady, err)
	}
	return b, nil
}

func (b *Binder) settle(name string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.logger.Error("bind failed", zap.String("dependency", name), zap.Error(err))
		b.errs = append(b.errs, fmt.Errorf("bind %s: %w", name, err))
	} else {
		b.logger.Info("dependency bound", zap.String("dependency", name))
	}

	b.pending--
	if b.pending == 0 {
		close(b.ready)
	}
}

// Wait blocks until both collaborators have been bound or ctx is done. It
// returns any bind failure.
func (b *Binder) Wait(ctx context.Context) error {
	select {
	case <-b.ready:
		b.mu.Lock()
		defer b.mu.Unlock()
		return errors.Join(b.errs...)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drops subscriptions for collaborators that never arrived.
func (b *Binder) Close() {
	if b.bus.HasCallback(TopicContentIndexReady) {
		_ = b.bus.Unsubscribe(TopicContentIndexReady, b.onIndex)
	}
	if b.bus.HasCallback(TopicByteStorageReady) {
		_ = b.bus.Unsubscribe(TopicByteStorageReady, b.onStorage)
	}
}

func AnnounceContentIndex(bus evbus.Bus, index render.ContentIndex) {
	bus.Publish(TopicContentIndexReady, index)
}

func AnnounceByteStorage(bus evbus.Bus, storage render.ByteStorage) {
	bus.Publish(TopicByteStorageReady, storage)
}
