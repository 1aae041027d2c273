package pipeline

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/dunamismax/pixelstyle/internal/style"
)

func BenchmarkRunThumbJPEG(b *testing.B) {
	source := buildTestPNG(b, 1920, 1080)
	p, err := NewBuilder(NewImagingCodec(82)).Build(style.Definition{
		Name:            "thumb",
		Transformations: []style.Step{style.Resize(640, 360)},
		Output:          style.FormatJPEG,
	})
	if err != nil {
		b.Fatalf("build pipeline: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := p.Run(context.Background(), source); err != nil {
			b.Fatalf("run: %v", err)
		}
	}
}

func BenchmarkStreamEmbedWhitePNG(b *testing.B) {
	source := buildTestPNG(b, 1920, 1080)
	p, err := NewBuilder(NewImagingCodec(0)).Build(style.Definition{
		Name:            "boxed",
		Transformations: []style.Step{style.Resize(400, 400), style.EmbedWhite()},
		Output:          style.FormatPNG,
	})
	if err != nil {
		b.Fatalf("build pipeline: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Stream(context.Background(), bytes.NewReader(source), io.Discard); err != nil {
			b.Fatalf("stream: %v", err)
		}
	}
}
