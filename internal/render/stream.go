package render

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelstyle/internal/pipeline"
	"github.com/dunamismax/pixelstyle/internal/style"
	"github.com/dunamismax/pixelstyle/internal/target"
)

const sniffLen = 512

// Stream is an opened, not yet started streaming render. The caller must
// either Pipe it or Close it.
type Stream struct {
	Target target.Parsed
	Style  style.Definition

	service     *Service
	pipeline    *pipeline.Pipeline
	source      *sourceReader
	contentType string
	closeOnce   sync.Once
	closeErr    error
}

// OpenStream resolves the style, parses the path and opens the source. No
// response bytes exist yet, so every failure here can still become a status
// code.
func (s *Service) OpenStream(ctx context.Context, styleName, requestPath string) (*Stream, error) {
	index, byteStorage, err := s.collaborators()
	if err != nil {
		return nil, err
	}

	def, parsed, err := s.resolve(styleName, requestPath)
	if err != nil {
		return nil, err
	}

	rc, err := s.locate(ctx, index, byteStorage, parsed.LookupKey)
	if err != nil {
		return nil, err
	}

	p, err := s.builder.Build(def)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("%w: style %s: %w", ErrTransform, def.Name, err)
	}

	source := &sourceReader{r: bufio.NewReaderSize(rc, 32*1024), c: rc}
	contentType, err := source.contentType(p)
	if err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrStream, parsed.LookupKey, err)
	}

	return &Stream{
		Target:      parsed,
		Style:       def,
		service:     s,
		pipeline:    p,
		source:      source,
		contentType: contentType,
	}, nil
}

// ContentType is the media type the piped bytes will have.
func (st *Stream) ContentType() string {
	return st.contentType
}

func (st *Stream) Pipeline() *pipeline.Pipeline {
	return st.pipeline
}

// Pipe runs the pipeline from the source into w and closes the source. Bytes
// may already have reached w when an error is returned. Canceling ctx
// closes the source so a stalled read unblocks.
func (st *Stream) Pipe(ctx context.Context, w io.Writer) (pipeline.Metadata, error) {
	defer st.Close()
	stop := context.AfterFunc(ctx, func() { _ = st.Close() })
	defer stop()

	ctx, span := st.service.tracer.Start(ctx, "render.stream")
	defer span.End()
	span.SetAttributes(
		attribute.String("style.name", st.Style.Name),
		attribute.String("content.url", st.Target.LookupKey),
		attribute.Bool("pipeline.passthrough", st.pipeline.IsPassthrough()),
	)

	meta, err := st.pipeline.Stream(ctx, st.source, w)
	if err != nil {
		switch {
		case st.source.failure() != nil:
			err = fmt.Errorf("%w: %s: %w", ErrStream, st.Target.LookupKey, st.source.failure())
		case ctx.Err() != nil:
			err = fmt.Errorf("%w: %s: %w", ErrStream, st.Target.LookupKey, ctx.Err())
		default:
			err = fmt.Errorf("%w: %s: %w", ErrTransform, st.Target.LookupKey, err)
		}
		return pipeline.Metadata{}, st.service.fail(span, err)
	}

	st.service.logger.Debug("streamed image",
		zap.String("style", st.Style.Name),
		zap.String("lookup_key", st.Target.LookupKey),
		zap.Int64("bytes", meta.Size),
	)
	return meta, nil
}

// Close releases the source. It is safe to call more than once.
func (st *Stream) Close() error {
	st.closeOnce.Do(func() {
		st.closeErr = st.source.close()
	})
	return st.closeErr
}

// sourceReader records the first read failure so a broken source can be told
// apart from a codec failure.
type sourceReader struct {
	r *bufio.Reader
	c io.Closer

	mu  sync.Mutex
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.mu.Unlock()
	}
	return n, err
}

func (s *sourceReader) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *sourceReader) close() error {
	return s.c.Close()
}

// contentType picks the response media type before any byte is written: the
// forced encoding when the style has one, otherwise whatever the source
// bytes look like, downgraded to png when the codec cannot write it.
func (s *sourceReader) contentType(p *pipeline.Pipeline) (string, error) {
	if p.Output().Valid() {
		return pipeline.ContentTypeForFormat(p.Output().String()), nil
	}

	head, err := s.r.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return "", err
	}
	sniffed := http.DetectContentType(head)
	if p.IsPassthrough() {
		return sniffed, nil
	}

	name, isImage := strings.CutPrefix(sniffed, "image/")
	if !isImage {
		name = ""
	}
	return pipeline.ContentTypeForFormat(p.OutputFor(name).String()), nil
}
