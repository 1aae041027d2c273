package pipeline

import (
	"bytes"
	"context"
	"image"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dunamismax/pixelstyle/internal/style"
)

func buildImaging(t *testing.T, def style.Definition) *Pipeline {
	t.Helper()
	p, err := NewBuilder(NewImagingCodec(75)).Build(def)
	require.NoError(t, err)
	return p
}

func TestImagingThumbResizesAndEncodesJPEG(t *testing.T) {
	p := buildImaging(t, style.Definition{
		Name:            "thumb",
		Transformations: []style.Step{style.Resize(200, 200)},
		Output:          style.FormatJPEG,
	})

	out, meta, err := p.Run(context.Background(), buildTestPNG(t, 240, 120))
	require.NoError(t, err)
	require.Equal(t, "jpeg", meta.Format)
	require.Equal(t, 200, meta.Width)
	require.Equal(t, 200, meta.Height)
	require.EqualValues(t, len(out), meta.Size)
	require.Equal(t, "image/jpeg", meta.ContentType())

	_, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
}

func TestImagingMaxDoesNotUpscale(t *testing.T) {
	p := buildImaging(t, style.Definition{
		Name:            "bounded",
		Transformations: []style.Step{style.Resize(200, 200), style.Max()},
	})

	_, meta, err := p.Run(context.Background(), buildTestPNG(t, 80, 40))
	require.NoError(t, err)
	require.Equal(t, 80, meta.Width)
	require.Equal(t, 40, meta.Height)
	require.Equal(t, "png", meta.Format)
}

func TestImagingMaxFitsWithinBounds(t *testing.T) {
	p := buildImaging(t, style.Definition{
		Name:            "bounded",
		Transformations: []style.Step{style.Resize(100, 100), style.Max()},
	})

	_, meta, err := p.Run(context.Background(), buildTestPNG(t, 400, 200))
	require.NoError(t, err)
	require.Equal(t, 100, meta.Width)
	require.Equal(t, 50, meta.Height)
}

func TestImagingEmbedWhitePadsToBounds(t *testing.T) {
	p := buildImaging(t, style.Definition{
		Name:            "boxed",
		Transformations: []style.Step{style.Resize(100, 100), style.EmbedWhite()},
		Output:          style.FormatPNG,
	})

	out, meta, err := p.Run(context.Background(), buildTestPNG(t, 400, 200))
	require.NoError(t, err)
	require.Equal(t, 100, meta.Width)
	require.Equal(t, 100, meta.Height)

	img, _, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, g, b, a := img.At(0, 0).RGBA()
	require.Equal(t, []uint32{0xffff, 0xffff, 0xffff, 0xffff}, []uint32{r, g, b, a})

	_, _, blue, _ := img.At(50, 50).RGBA()
	require.Less(t, blue, uint32(0xffff))
}

func TestImagingResizeWithSingleDimensionKeepsAspect(t *testing.T) {
	p := buildImaging(t, style.Definition{
		Name:            "wide",
		Transformations: []style.Step{style.Resize(120, 0)},
	})

	_, meta, err := p.Run(context.Background(), buildTestPNG(t, 240, 120))
	require.NoError(t, err)
	require.Equal(t, 120, meta.Width)
	require.Equal(t, 60, meta.Height)
}

func TestImagingStreamReportsWrittenBytes(t *testing.T) {
	p := buildImaging(t, style.Definition{
		Name:            "thumb",
		Transformations: []style.Step{style.Resize(64, 64)},
		Output:          style.FormatJPEG,
	})

	var out bytes.Buffer
	meta, err := p.Stream(context.Background(), bytes.NewReader(buildTestPNG(t, 128, 128)), &out)
	require.NoError(t, err)
	require.Equal(t, "jpeg", meta.Format)
	require.Equal(t, 64, meta.Width)
	require.EqualValues(t, out.Len(), meta.Size)
}

func TestImagingWebPOutputIsUnsupported(t *testing.T) {
	p := buildImaging(t, style.Definition{
		Name:            "modern",
		Transformations: []style.Step{style.Resize(10, 10)},
		Output:          style.FormatWebP,
	})

	_, _, err := p.Run(context.Background(), buildTestPNG(t, 20, 20))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestImagingWebPSourceWithoutOutputEncodesPNG(t *testing.T) {
	src, err := os.ReadFile("testdata/source.webp")
	require.NoError(t, err)

	p := buildImaging(t, style.Definition{
		Name:            "boxed",
		Transformations: []style.Step{style.Resize(60, 60), style.EmbedWhite()},
	})

	var out bytes.Buffer
	meta, err := p.Stream(context.Background(), bytes.NewReader(src), &out)
	require.NoError(t, err)
	require.Equal(t, "png", meta.Format)
	require.Equal(t, 60, meta.Width)
	require.Equal(t, 60, meta.Height)

	_, format, err := image.DecodeConfig(&out)
	require.NoError(t, err)
	require.Equal(t, "png", format)
}

func TestImagingRejectsGarbage(t *testing.T) {
	p := buildImaging(t, style.Definition{
		Name:            "thumb",
		Transformations: []style.Step{style.Resize(10, 10)},
	})

	_, _, err := p.Run(context.Background(), []byte("definitely not an image"))
	require.Error(t, err)
}

func TestImagingInspect(t *testing.T) {
	b := NewBuilder(NewImagingCodec(0))
	data := buildTestPNG(t, 31, 17)

	meta, err := b.Inspect(context.Background(), data)
	require.NoError(t, err)
	require.Equal(t, Metadata{Format: "png", Width: 31, Height: 17, Size: int64(len(data))}, meta)
}
