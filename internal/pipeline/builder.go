package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/dunamismax/pixelstyle/internal/style"
)

type StepKind string

const (
	StepResize     StepKind = "resize"
	StepMax        StepKind = "max"
	StepEmbedWhite StepKind = "embedWhite"
	StepEncode     StepKind = "encode"
)

type Step struct {
	Kind   StepKind
	Width  int
	Height int
	Format style.Format
}

type Builder struct {
	codec Codec
}

func NewBuilder(codec Codec) *Builder {
	return &Builder{codec: codec}
}

// NewDefaultBuilder uses libvips when built with the govips tag and cgo,
// and the pure Go codec otherwise.
func NewDefaultBuilder() (*Builder, error) {
	codec, err := newCodec()
	if err != nil {
		return nil, fmt.Errorf("build codec: %w", err)
	}
	return NewBuilder(codec), nil
}

func (b *Builder) Codec() Codec {
	return b.codec
}

// Build translates def into an ordered, not yet executed pipeline. Any
// format override must already be applied to def.Output.
func (b *Builder) Build(def style.Definition) (*Pipeline, error) {
	steps := make([]Step, 0, len(def.Transformations)+1)
	for i, t := range def.Transformations {
		switch t.Kind {
		case style.StepResize:
			if t.Width < 0 || t.Height < 0 || (t.Width == 0 && t.Height == 0) {
				return nil, fmt.Errorf("%w: transformations[%d] resize %dx%d", ErrInvalidStep, i, t.Width, t.Height)
			}
			steps = append(steps, Step{Kind: StepResize, Width: t.Width, Height: t.Height})
		case style.StepMax:
			steps = append(steps, Step{Kind: StepMax})
		case style.StepEmbedWhite:
			steps = append(steps, Step{Kind: StepEmbedWhite})
		default:
			return nil, fmt.Errorf("%w: transformations[%d] %q", ErrInvalidStep, i, t.Kind)
		}
	}

	output := style.FormatNone
	if def.Output.Valid() {
		output = def.Output
		steps = append(steps, Step{Kind: StepEncode, Format: output})
	}

	return &Pipeline{
		codec:  b.codec,
		steps:  steps,
		output: output,
	}, nil
}

func (b *Builder) Inspect(ctx context.Context, data []byte) (Metadata, error) {
	if err := checkContext(ctx); err != nil {
		return Metadata{}, err
	}
	return b.codec.Inspect(ctx, data)
}

type Pipeline struct {
	codec  Codec
	steps  []Step
	output style.Format
}

func (p *Pipeline) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Output is the forced encoding, or FormatNone to keep the source format.
func (p *Pipeline) Output() style.Format {
	return p.output
}

// OutputFor is the encoding a source in the given format ends up in.
func (p *Pipeline) OutputFor(sourceFormat string) style.Format {
	if p.output.Valid() {
		return p.output
	}
	return nativeOutput(p.codec, sourceFormat)
}

// IsPassthrough reports whether the pipeline leaves the source bytes as is.
func (p *Pipeline) IsPassthrough() bool {
	return len(p.steps) == 0
}

func (p *Pipeline) Plan() Plan {
	return Plan{
		Stages: stagesFor(p.steps),
		Output: p.output,
	}
}

// Stream runs the pipeline from src into dst without buffering the encoded
// result.
func (p *Pipeline) Stream(ctx context.Context, src io.Reader, dst io.Writer) (Metadata, error) {
	if err := checkContext(ctx); err != nil {
		return Metadata{}, err
	}

	counter := &countingWriter{w: dst}
	if p.IsPassthrough() {
		_, err := io.Copy(counter, src)
		return Metadata{Size: counter.n}, err
	}

	meta, err := p.codec.Transform(ctx, src, counter, p.Plan())
	if err != nil {
		return Metadata{}, err
	}
	meta.Size = counter.n
	return meta, nil
}

// Run executes the pipeline against a complete buffer. The metadata is read
// back from the produced bytes.
func (p *Pipeline) Run(ctx context.Context, input []byte) ([]byte, Metadata, error) {
	if err := checkContext(ctx); err != nil {
		return nil, Metadata{}, err
	}

	output := input
	if !p.IsPassthrough() {
		var buf bytes.Buffer
		if _, err := p.codec.Transform(ctx, bytes.NewReader(input), &buf, p.Plan()); err != nil {
			return nil, Metadata{}, err
		}
		output = buf.Bytes()
	}

	meta, err := p.codec.Inspect(ctx, output)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("inspect output: %w", err)
	}
	meta.Size = int64(len(output))
	return output, meta, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
