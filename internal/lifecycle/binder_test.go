package lifecycle

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/dunamismax/pixelstyle/internal/content"
	"github.com/dunamismax/pixelstyle/internal/pipeline"
	"github.com/dunamismax/pixelstyle/internal/render"
	"github.com/dunamismax/pixelstyle/internal/style"
)

type nopStorage struct{}

func (nopStorage) OpenStream(context.Context, string) (io.ReadCloser, error) {
	return nil, errors.New("empty")
}

func newService(t *testing.T) *render.Service {
	return render.New(zaptest.NewLogger(t), style.NewRegistry(), pipeline.NewBuilder(pipeline.NewImagingCodec(0)))
}

func TestBinderAcceptsEitherArrivalOrder(t *testing.T) {
	orders := map[string]func(bus evbus.Bus){
		"index first": func(bus evbus.Bus) {
			AnnounceContentIndex(bus, content.NewMemoryIndex())
			AnnounceByteStorage(bus, nopStorage{})
		},
		"storage first": func(bus evbus.Bus) {
			AnnounceByteStorage(bus, nopStorage{})
			AnnounceContentIndex(bus, content.NewMemoryIndex())
		},
	}

	for name, announce := range orders {
		t.Run(name, func(t *testing.T) {
			bus := evbus.New()
			svc := newService(t)
			binder, err := NewBinder(bus, svc, zaptest.NewLogger(t))
			require.NoError(t, err)
			defer binder.Close()

			announce(bus)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			require.NoError(t, binder.Wait(ctx))
			require.True(t, svc.Ready())
		})
	}
}

func TestBinderWaitsForBoth(t *testing.T) {
	bus := evbus.New()
	svc := newService(t)
	binder, err := NewBinder(bus, svc, nil)
	require.NoError(t, err)
	defer binder.Close()

	AnnounceContentIndex(bus, content.NewMemoryIndex())
	require.False(t, svc.Ready())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, binder.Wait(ctx), context.DeadlineExceeded)
	require.False(t, svc.Ready())

	AnnounceByteStorage(bus, nopStorage{})
	require.NoError(t, binder.Wait(context.Background()))
	require.True(t, svc.Ready())
}

func TestBinderBindsEachDependencyOnce(t *testing.T) {
	bus := evbus.New()
	svc := newService(t)
	binder, err := NewBinder(bus, svc, nil)
	require.NoError(t, err)
	defer binder.Close()

	first := content.NewMemoryIndex()
	AnnounceContentIndex(bus, first)
	AnnounceContentIndex(bus, content.NewMemoryIndex())
	AnnounceByteStorage(bus, nopStorage{})

	require.NoError(t, binder.Wait(context.Background()))
	require.False(t, bus.HasCallback(TopicContentIndexReady))
	require.False(t, bus.HasCallback(TopicByteStorageReady))
}

type refusingTarget struct{}

func (refusingTarget) BindContentIndex(render.ContentIndex) error {
	return render.ErrAlreadyBound
}

func (refusingTarget) BindByteStorage(render.ByteStorage) error {
	return nil
}

func TestBinderReportsBindFailures(t *testing.T) {
	bus := evbus.New()
	binder, err := NewBinder(bus, refusingTarget{}, nil)
	require.NoError(t, err)

	AnnounceByteStorage(bus, nopStorage{})
	AnnounceContentIndex(bus, content.NewMemoryIndex())

	err = binder.Wait(context.Background())
	require.ErrorIs(t, err, render.ErrAlreadyBound)
	require.ErrorContains(t, err, "bind content index")
}

func TestBinderCloseDropsPendingSubscriptions(t *testing.T) {
	bus := evbus.New()
	binder, err := NewBinder(bus, newService(t), nil)
	require.NoError(t, err)
	require.True(t, bus.HasCallback(TopicByteStorageReady))

	binder.Close()
	require.False(t, bus.HasCallback(TopicContentIndexReady))
	require.False(t, bus.HasCallback(TopicByteStorageReady))
}

func TestNewBinderRequiresBusAndTarget(t *testing.T) {
	_, err := NewBinder(nil, newService(t), nil)
	require.Error(t, err)
	_, err = NewBinder(evbus.New(), nil, nil)
	require.Error(t, err)
}
