package style

import "strings"

type Format string

const (
	FormatNone Format = ""
	FormatWebP Format = "webp"
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// ParseFormat normalizes a format token. jpg is accepted as jpeg.
func ParseFormat(in string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(in)) {
	case "webp":
		return FormatWebP, true
	case "jpeg", "jpg":
		return FormatJPEG, true
	case "png":
		return FormatPNG, true
	default:
		return FormatNone, false
	}
}

func (f Format) Valid() bool {
	switch f {
	case FormatWebP, FormatJPEG, FormatPNG:
		return true
	default:
		return false
	}
}

func (f Format) String() string {
	return string(f)
}

type StepKind string

const (
	StepResize     StepKind = "resize"
	StepMax        StepKind = "max"
	StepEmbedWhite StepKind = "embedWhite"
)

// Step is one transformation of a style. Width and Height are only
// meaningful for StepResize.
type Step struct {
	Kind   StepKind
	Width  int
	Height int
}

func Resize(width, height int) Step {
	return Step{Kind: StepResize, Width: width, Height: height}
}

func Max() Step {
	return Step{Kind: StepMax}
}

func EmbedWhite() Step {
	return Step{Kind: StepEmbedWhite}
}

type Definition struct {
	Name            string
	Transformations []Step
	Output          Format
}

// Clone returns a copy that shares no memory with d.
func (d Definition) Clone() Definition {
	out := d
	if d.Transformations != nil {
		out.Transformations = make([]Step, len(d.Transformations))
		copy(out.Transformations, d.Transformations)
	}
	return out
}

// WithOutput returns a copy of d whose output is replaced by format.
func (d Definition) WithOutput(format Format) Definition {
	out := d.Clone()
	out.Output = format
	return out
}
