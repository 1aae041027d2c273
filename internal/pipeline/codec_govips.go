//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/dunamismax/pixelstyle/internal/style"
)

type govipsCodec struct {
	quality int
}

func (govipsCodec) Name() string {
	return "govips"
}

func (govipsCodec) CanEncode(format style.Format) bool {
	switch format {
	case style.FormatJPEG, style.FormatPNG, style.FormatWebP:
		return true
	default:
		return false
	}
}

func (c govipsCodec) Transform(ctx context.Context, src io.Reader, dst io.Writer, plan Plan) (Metadata, error) {
	if err := checkContext(ctx); err != nil {
		return Metadata{}, err
	}

	img, err := vips.NewImageFromReader(src)
	if err != nil {
		return Metadata{}, fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	for _, stage := range plan.Stages {
		if err := checkContext(ctx); err != nil {
			return Metadata{}, err
		}
		if err := applyGovipsStage(img, stage); err != nil {
			return Metadata{}, err
		}
	}

	format := plan.Output
	if format == style.FormatNone {
		format = nativeOutput(c, govipsFormatName(img.Format()))
	}

	data, err := exportGovipsImage(img, format, c.quality)
	if err != nil {
		return Metadata{}, err
	}
	if _, err := dst.Write(data); err != nil {
		return Metadata{}, fmt.Errorf("write output: %w", err)
	}

	return Metadata{
		Format: format.String(),
		Width:  img.Width(),
		Height: img.Height(),
	}, nil
}

func (govipsCodec) Inspect(_ context.Context, data []byte) (Metadata, error) {
	img, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return Metadata{}, fmt.Errorf("decode image header: %w", err)
	}
	defer img.Close()

	return Metadata{
		Format: govipsFormatName(vips.DetermineImageType(data)),
		Width:  img.Width(),
		Height: img.Height(),
		Size:   int64(len(data)),
	}, nil
}

func applyGovipsStage(img *vips.ImageRef, stage Stage) error {
	srcW, srcH := img.Width(), img.Height()
	if srcW <= 0 || srcH <= 0 {
		return fmt.Errorf("source image has invalid dimensions")
	}

	switch stage.Mode {
	case FitInside:
		w, h := stage.Width, stage.Height
		if w <= 0 {
			w = srcW
		}
		if h <= 0 {
			h = srcH
		}
		if srcW <= w && srcH <= h {
			return nil
		}
		cw, _ := containSize(srcW, srcH, w, h)
		return resizeGovips(img, float64(cw)/float64(srcW))
	case FitEmbedWhite:
		cw, _ := containSize(srcW, srcH, stage.Width, stage.Height)
		if err := resizeGovips(img, float64(cw)/float64(srcW)); err != nil {
			return err
		}
		if stage.Width <= 0 || stage.Height <= 0 {
			return nil
		}
		left := (stage.Width - img.Width()) / 2
		top := (stage.Height - img.Height()) / 2
		if err := img.EmbedBackground(left, top, stage.Width, stage.Height, &vips.Color{R: 255, G: 255, B: 255}); err != nil {
			return fmt.Errorf("embed image: %w", err)
		}
		return nil
	default:
		if stage.Width > 0 && stage.Height > 0 {
			if err := img.Thumbnail(stage.Width, stage.Height, vips.InterestingCentre); err != nil {
				return fmt.Errorf("resize image: %w", err)
			}
			return nil
		}
		cw, _ := containSize(srcW, srcH, stage.Width, stage.Height)
		return resizeGovips(img, float64(cw)/float64(srcW))
	}
}

func resizeGovips(img *vips.ImageRef, scale float64) error {
	if scale <= 0 {
		return fmt.Errorf("invalid resize scale")
	}
	if scale == 1 {
		return nil
	}
	if err := img.Resize(scale, vips.KernelLanczos3); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	return nil
}

func govipsFormatName(t vips.ImageType) string {
	switch t {
	case vips.ImageTypeJPEG:
		return "jpeg"
	case vips.ImageTypeWEBP:
		return "webp"
	case vips.ImageTypePNG:
		return "png"
	case vips.ImageTypeGIF:
		return "gif"
	default:
		return "unknown"
	}
}

func exportGovipsImage(img *vips.ImageRef, format style.Format, quality int) ([]byte, error) {
	switch format {
	case style.FormatJPEG:
		params := vips.NewJpegExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case style.FormatPNG:
		data, _, err := img.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case style.FormatWebP:
		params := vips.NewWebpExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
