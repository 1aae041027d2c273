// Package render serves styled images: it resolves a style, parses the
// request path, locates the source through the content index and byte
// storage, and runs the style's pipeline either streaming or buffered.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelstyle/internal/content"
	"github.com/dunamismax/pixelstyle/internal/pipeline"
	"github.com/dunamismax/pixelstyle/internal/storage"
	"github.com/dunamismax/pixelstyle/internal/style"
	"github.com/dunamismax/pixelstyle/internal/target"
)

type StyleResolver interface {
	Get(name string) (style.Definition, bool)
}

type ContentIndex interface {
	Lookup(ctx context.Context, url string) (content.Record, bool, error)
}

type ByteStorage interface {
	OpenStream(ctx context.Context, recordID string) (io.ReadCloser, error)
}

type Option func(*Service)

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// Service is constructed without its content index and byte storage; both
// are bound later, once, as they become available. Until then every request
// fails with ErrDependenciesNotReady.
type Service struct {
	logger  *zap.Logger
	styles  StyleResolver
	builder *pipeline.Builder
	tracer  trace.Tracer

	mu           sync.RWMutex
	index        ContentIndex
	storage      ByteStorage
	indexBound   bool
	storageBound bool
}

func New(logger *zap.Logger, styles StyleResolver, builder *pipeline.Builder, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		logger:  logger,
		styles:  styles,
		builder: builder,
		tracer:  otel.Tracer("pixelstyle/render"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) BindContentIndex(index ContentIndex) error {
	if index == nil {
		return errors.New("content index is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexBound {
		return fmt.Errorf("%w: content index", ErrAlreadyBound)
	}
	s.index = index
	s.indexBound = true
	s.logger.Info("content index bound", zap.Bool("ready", s.storage != nil))
	return nil
}

func (s *Service) BindByteStorage(byteStorage ByteStorage) error {
	if byteStorage == nil {
		return errors.New("byte storage is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storageBound {
		return fmt.Errorf("%w: byte storage", ErrAlreadyBound)
	}
	s.storage = byteStorage
	s.storageBound = true
	s.logger.Info("byte storage bound", zap.Bool("ready", s.index != nil))
	return nil
}

func (s *Service) Ready() bool {
	_, _, err := s.collaborators()
	return err == nil
}

// Shutdown releases the bound collaborators. Requests made afterwards fail
// with ErrDependenciesNotReady.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = nil
	s.storage = nil
}

func (s *Service) collaborators() (ContentIndex, ByteStorage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil || s.storage == nil {
		return nil, nil, ErrDependenciesNotReady
	}
	return s.index, s.storage, nil
}

// Result is the outcome of the buffered flow. Metadata and ContentType
// describe Data, not the requested style.
type Result struct {
	Data        []byte
	Metadata    pipeline.Metadata
	ContentType string
	Target      target.Parsed
	Style       style.Definition
}

// Render loads the whole source, transforms it and returns the output.
func (s *Service) Render(ctx context.Context, styleName, requestPath string) (Result, error) {
	index, byteStorage, err := s.collaborators()
	if err != nil {
		return Result{}, err
	}

	def, parsed, err := s.resolve(styleName, requestPath)
	if err != nil {
		return Result{}, err
	}

	data, err := s.load(ctx, index, byteStorage, parsed.LookupKey)
	if err != nil {
		return Result{}, err
	}

	ctx, span := s.tracer.Start(ctx, "render.transform")
	defer span.End()
	span.SetAttributes(attribute.String("style.name", def.Name), attribute.String("style.output", def.Output.String()))

	p, err := s.builder.Build(def)
	if err != nil {
		return Result{}, s.fail(span, fmt.Errorf("%w: style %s: %w", ErrTransform, def.Name, err))
	}

	out, meta, err := p.Run(ctx, data)
	if err != nil {
		return Result{}, s.fail(span, fmt.Errorf("%w: %s: %w", ErrTransform, parsed.LookupKey, err))
	}

	s.logger.Debug("rendered image",
		zap.String("style", def.Name),
		zap.String("lookup_key", parsed.LookupKey),
		zap.String("format", meta.Format),
		zap.Int("width", meta.Width),
		zap.Int("height", meta.Height),
	)
	return Result{
		Data:        out,
		Metadata:    meta,
		ContentType: meta.ContentType(),
		Target:      parsed,
		Style:       def,
	}, nil
}

// LoadByURL returns the complete source bytes stored for url.
func (s *Service) LoadByURL(ctx context.Context, url string) ([]byte, error) {
	index, byteStorage, err := s.collaborators()
	if err != nil {
		return nil, err
	}
	return s.load(ctx, index, byteStorage, url)
}

// Metadata reports the intrinsic properties of the image stored for url.
func (s *Service) Metadata(ctx context.Context, url string) (pipeline.Metadata, error) {
	data, err := s.LoadByURL(ctx, url)
	if err != nil {
		return pipeline.Metadata{}, err
	}

	meta, err := s.builder.Inspect(ctx, data)
	if err != nil {
		return pipeline.Metadata{}, fmt.Errorf("%w: %s: %w", ErrTransform, url, err)
	}
	return meta, nil
}

// resolve returns a private copy of the style with any output override from
// the request path applied.
func (s *Service) resolve(styleName, requestPath string) (style.Definition, target.Parsed, error) {
	def, ok := s.styles.Get(styleName)
	if !ok {
		return style.Definition{}, target.Parsed{}, fmt.Errorf("%w: %s", ErrStyleNotFound, styleName)
	}

	parsed := target.Parse(requestPath)
	return parsed.Apply(def), parsed, nil
}

func (s *Service) locate(ctx context.Context, index ContentIndex, byteStorage ByteStorage, url string) (io.ReadCloser, error) {
	ctx, span := s.tracer.Start(ctx, "render.locate")
	defer span.End()
	span.SetAttributes(attribute.String("content.url", url))

	record, ok, err := index.Lookup(ctx, url)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("%w: %s: %w", ErrLookup, url, err))
	}
	if !ok {
		return nil, s.fail(span, fmt.Errorf("%w: %s", ErrContentNotFound, url))
	}
	if !record.IsFile() {
		return nil, s.fail(span, fmt.Errorf("%w: %s has type %q", ErrObjectNotFound, url, record.Type))
	}
	span.SetAttributes(attribute.String("content.id", record.ID))

	rc, err := byteStorage.OpenStream(ctx, record.ID)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, s.fail(span, fmt.Errorf("%w: %s: %w", ErrObjectNotFound, url, err))
		}
		return nil, s.fail(span, fmt.Errorf("%w: %s: %w", ErrStream, url, err))
	}
	if rc == nil {
		return nil, s.fail(span, fmt.Errorf("%w: %s: no stream for record %s", ErrStream, url, record.ID))
	}
	return rc, nil
}

// load is the buffered drain shared by every buffered entry point.
func (s *Service) load(ctx context.Context, index ContentIndex, byteStorage ByteStorage, url string) ([]byte, error) {
	rc, err := s.locate(ctx, index, byteStorage, url)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStream, url, err)
	}
	return data, nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "render failed")
	return err
}
