package pipeline

type FitMode int

const (
	// FitCover scales and center-crops to exactly Width x Height.
	FitCover FitMode = iota
	// FitInside scales down to fit within the bounds, never up.
	FitInside
	// FitEmbedWhite scales to fit within the bounds and pads the rest white.
	FitEmbedWhite
)

func (m FitMode) String() string {
	switch m {
	case FitInside:
		return "inside"
	case FitEmbedWhite:
		return "embed_white"
	default:
		return "cover"
	}
}

// Stage is one resize with the fit mode that the steps following it chose.
// A zero Width or Height means that side follows the aspect ratio.
type Stage struct {
	Width  int
	Height int
	Mode   FitMode
}

// stagesFor folds steps into sizing stages. max and embedWhite modify the
// closest preceding resize and are dropped when there is none; the last
// modifier wins.
func stagesFor(steps []Step) []Stage {
	var (
		stages []Stage
		open   bool
	)
	for _, step := range steps {
		switch step.Kind {
		case StepResize:
			stages = append(stages, Stage{Width: step.Width, Height: step.Height, Mode: FitCover})
			open = true
		case StepMax:
			if open {
				stages[len(stages)-1].Mode = FitInside
			}
		case StepEmbedWhite:
			if open {
				stages[len(stages)-1].Mode = FitEmbedWhite
			}
		}
	}
	return stages
}

// containSize returns the largest size with the source aspect ratio that
// fits within w x h. A zero bound is unconstrained.
func containSize(srcW, srcH, w, h int) (int, int) {
	if srcW <= 0 || srcH <= 0 {
		return w, h
	}
	if w <= 0 {
		w = srcW * h / srcH
		return max(1, w), h
	}
	if h <= 0 {
		h = srcH * w / srcW
		return w, max(1, h)
	}

	scaleW := float64(w) / float64(srcW)
	scaleH := float64(h) / float64(srcH)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	return max(1, int(float64(srcW)*scale+0.5)), max(1, int(float64(srcH)*scale+0.5))
}
