package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelstyle/internal/pipeline"
	"github.com/dunamismax/pixelstyle/internal/render"
)

const requestIDHeader = "X-Request-ID"

// Renderer is the part of render.Service the HTTP surface drives.
type Renderer interface {
	OpenStream(ctx context.Context, styleName, requestPath string) (*render.Stream, error)
	Render(ctx context.Context, styleName, requestPath string) (render.Result, error)
	Metadata(ctx context.Context, url string) (pipeline.Metadata, error)
	Ready() bool
}

type Server struct {
	logger      *zap.Logger
	renderer    Renderer
	metrics     *metrics
	tracer      trace.Tracer
	rateLimiter RateLimiter
	mux         *http.ServeMux
}

type Option func(*Server)

func WithRateLimiter(limiter RateLimiter) Option {
	return func(s *Server) {
		s.rateLimiter = limiter
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

func NewServer(logger *zap.Logger, renderer Renderer, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		logger:   logger,
		renderer: renderer,
		metrics:  newMetrics(),
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux))))
}

// Content URLs are stored with a leading slash; the wildcard drops it.
func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /images/{style}/{path...}", s.handleImage)
	s.mux.HandleFunc("GET /render/{style}/{path...}", s.handleRender)
	s.mux.HandleFunc("GET /metadata/{path...}", s.handleMetadata)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if !s.renderer.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "waiting for dependencies"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	const flow = "stream"
	styleName := r.PathValue("style")
	requestPath := "/" + r.PathValue("path")

	stream, err := s.renderer.OpenStream(r.Context(), styleName, requestPath)
	if err != nil {
		s.writeError(w, r, flow, err)
		return
	}

	out := &lazyWriter{ResponseWriter: w, contentType: stream.ContentType()}
	meta, err := stream.Pipe(r.Context(), out)
	if err != nil {
		if !out.committed {
			s.writeError(w, r, flow, err)
			return
		}
		// Headers and part of the body are gone; the only honest signal left
		// is a broken connection.
		s.metrics.renderFailures.WithLabelValues(flow, errorReason(err)).Inc()
		s.logger.Error("image stream aborted",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("style", styleName),
			zap.String("path", requestPath),
			zap.Int64("bytes_written", out.written),
			zap.Error(err),
		)
		panic(http.ErrAbortHandler)
	}
	out.commit()

	s.metrics.imageRenders.WithLabelValues(flow, stream.ContentType()).Inc()
	s.metrics.bytesServed.WithLabelValues(flow).Add(float64(meta.Size))
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	const flow = "buffered"

	res, err := s.renderer.Render(r.Context(), r.PathValue("style"), "/"+r.PathValue("path"))
	if err != nil {
		s.writeError(w, r, flow, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	w.Header().Set("X-Image-Width", strconv.Itoa(res.Metadata.Width))
	w.Header().Set("X-Image-Height", strconv.Itoa(res.Metadata.Height))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		s.logger.Warn("write rendered image failed", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
		return
	}

	s.metrics.imageRenders.WithLabelValues(flow, res.ContentType).Inc()
	s.metrics.bytesServed.WithLabelValues(flow).Add(float64(len(res.Data)))
}

type metadataResponse struct {
	URL           string  `json:"url"`
	Format        string  `json:"format"`
	MimeType      string  `json:"mimetype"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	AspectRatio   float64 `json:"aspect_ratio"`
	ContentLength int64   `json:"content_length"`
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	url := "/" + r.PathValue("path")
	meta, err := s.renderer.Metadata(r.Context(), url)
	if err != nil {
		s.writeError(w, r, "metadata", err)
		return
	}

	resp := metadataResponse{
		URL:           url,
		Format:        meta.Format,
		MimeType:      meta.ContentType(),
		Width:         meta.Width,
		Height:        meta.Height,
		ContentLength: meta.Size,
	}
	if meta.Height > 0 {
		resp.AspectRatio = float64(meta.Width) / float64(meta.Height)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, flow string, err error) {
	status := statusForError(err)
	s.metrics.renderFailures.WithLabelValues(flow, errorReason(err)).Inc()

	fields := []zap.Field{
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Info("request failed", fields...)
	}

	http.Error(w, err.Error(), status)
}

// statusForError maps render failures to HTTP statuses. An unknown style is
// a server-side misconfiguration rather than a client error.
func statusForError(err error) int {
	switch {
	case errors.Is(err, render.ErrDependenciesNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, render.ErrContentNotFound), errors.Is(err, render.ErrObjectNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, render.ErrDependenciesNotReady):
		return "not_ready"
	case errors.Is(err, render.ErrStyleNotFound):
		return "style_not_found"
	case errors.Is(err, render.ErrContentNotFound):
		return "content_not_found"
	case errors.Is(err, render.ErrObjectNotFound):
		return "object_not_found"
	case errors.Is(err, render.ErrLookup):
		return "lookup"
	case errors.Is(err, render.ErrStream):
		return "stream"
	case errors.Is(err, render.ErrTransform):
		return "transform"
	default:
		return "internal"
	}
}

// lazyWriter holds the status line back until the first body byte, so a
// failure before that point can still produce an error response.
type lazyWriter struct {
	http.ResponseWriter
	contentType string
	committed   bool
	written     int64
}

func (w *lazyWriter) commit() {
	if w.committed {
		return
	}
	w.committed = true
	w.Header().Set("Content-Type", w.contentType)
	w.ResponseWriter.WriteHeader(http.StatusOK)
}

func (w *lazyWriter) Write(p []byte) (int, error) {
	w.commit()
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

type requestIDKey struct{}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
