package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dunamismax/pixelstyle/internal/style"
)

var (
	ErrInvalidStep       = errors.New("invalid pipeline step")
	ErrUnsupportedFormat = errors.New("unsupported output format")
)

// Codec is the image engine a pipeline runs on.
type Codec interface {
	Name() string
	// Transform decodes src, applies plan and writes the encoded result to dst.
	// The returned metadata describes the written image.
	Transform(ctx context.Context, src io.Reader, dst io.Writer, plan Plan) (Metadata, error)
	// Inspect reads the intrinsic properties of an encoded image.
	Inspect(ctx context.Context, data []byte) (Metadata, error)
	// CanEncode reports whether Transform can write format.
	CanEncode(format style.Format) bool
}

// Plan is what a codec executes: sizing stages in order, then an optional
// encode. An empty Output keeps the source encoding.
type Plan struct {
	Stages []Stage
	Output style.Format
}

type Metadata struct {
	Format string `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Size   int64  `json:"size"`
}

func (m Metadata) ContentType() string {
	return ContentTypeForFormat(m.Format)
}

func ContentTypeForFormat(format string) string {
	switch normalizeOutputFormat(strings.ToLower(strings.TrimSpace(format))) {
	case "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

func normalizeOutputFormat(format string) string {
	switch format {
	case "jpg":
		return "jpeg"
	default:
		return format
	}
}

// nativeOutput picks the encoding used when a plan keeps the source format.
// Formats the codec cannot write fall back to png.
func nativeOutput(codec Codec, decoded string) style.Format {
	format, ok := style.ParseFormat(decoded)
	if ok && codec.CanEncode(format) {
		return format
	}
	return style.FormatPNG
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
