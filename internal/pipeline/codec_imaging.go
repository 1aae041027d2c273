package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/dunamismax/pixelstyle/internal/style"
)

const defaultJPEGQuality = 80

// imagingCodec is the pure Go codec. It decodes jpeg, png, gif, bmp, tiff
// and webp, and encodes jpeg and png.
type imagingCodec struct {
	jpegQuality int
}

func NewImagingCodec(jpegQuality int) Codec {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = defaultJPEGQuality
	}
	return imagingCodec{jpegQuality: jpegQuality}
}

func (imagingCodec) Name() string {
	return "imaging"
}

func (imagingCodec) CanEncode(format style.Format) bool {
	return format == style.FormatJPEG || format == style.FormatPNG
}

func (c imagingCodec) Transform(ctx context.Context, src io.Reader, dst io.Writer, plan Plan) (Metadata, error) {
	if err := checkContext(ctx); err != nil {
		return Metadata{}, err
	}

	img, srcFormat, err := image.Decode(src)
	if err != nil {
		return Metadata{}, fmt.Errorf("decode source image: %w", err)
	}

	for _, stage := range plan.Stages {
		if err := checkContext(ctx); err != nil {
			return Metadata{}, err
		}
		img = applyImagingStage(img, stage)
	}

	format := plan.Output
	if format == style.FormatNone {
		format = nativeOutput(c, srcFormat)
	}
	if err := c.encode(dst, img, format); err != nil {
		return Metadata{}, err
	}

	bounds := img.Bounds()
	return Metadata{
		Format: format.String(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

func (imagingCodec) Inspect(_ context.Context, data []byte) (Metadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Metadata{}, fmt.Errorf("decode image header: %w", err)
	}
	return Metadata{
		Format: normalizeOutputFormat(format),
		Width:  cfg.Width,
		Height: cfg.Height,
		Size:   int64(len(data)),
	}, nil
}

func applyImagingStage(img image.Image, stage Stage) image.Image {
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	w, h := stage.Width, stage.Height

	switch stage.Mode {
	case FitInside:
		if w <= 0 {
			w = srcW
		}
		if h <= 0 {
			h = srcH
		}
		return imaging.Fit(img, w, h, imaging.Lanczos)
	case FitEmbedWhite:
		if w <= 0 || h <= 0 {
			return imaging.Resize(img, w, h, imaging.Lanczos)
		}
		cw, ch := containSize(srcW, srcH, w, h)
		resized := imaging.Resize(img, cw, ch, imaging.Lanczos)
		return imaging.PasteCenter(imaging.New(w, h, color.White), resized)
	default:
		if w <= 0 || h <= 0 {
			return imaging.Resize(img, w, h, imaging.Lanczos)
		}
		return imaging.Fill(img, w, h, imaging.Center, imaging.Lanczos)
	}
}

func (c imagingCodec) encode(w io.Writer, img image.Image, format style.Format) error {
	switch format {
	case style.FormatJPEG:
		if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(c.jpegQuality)); err != nil {
			return fmt.Errorf("encode jpeg: %w", err)
		}
	case style.FormatPNG:
		if err := imaging.Encode(w, img, imaging.PNG); err != nil {
			return fmt.Errorf("encode png: %w", err)
		}
	case style.FormatWebP:
		return fmt.Errorf("%w: webp export requires the govips build", ErrUnsupportedFormat)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return nil
}
