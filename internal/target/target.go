// Package target splits a request path into the key used to look the source
// up and an optional output format forced by a trailing second extension,
// e.g. /a/b/image.png.webp.
package target

import (
	"regexp"

	"github.com/dunamismax/pixelstyle/internal/style"
)

var doubleExtension = regexp.MustCompile(`^(.*)\.(webp|png|jpeg|jpg)\.(webp|png|jpeg|jpg)$`)

type Parsed struct {
	LookupKey      string
	FormatOverride style.Format
}

func (p Parsed) HasOverride() bool {
	return p.FormatOverride != style.FormatNone
}

// Apply returns def with its output replaced by the override, if any.
func (p Parsed) Apply(def style.Definition) style.Definition {
	if !p.HasOverride() {
		return def.Clone()
	}
	return def.WithOutput(p.FormatOverride)
}

func Parse(path string) Parsed {
	m := doubleExtension.FindStringSubmatch(path)
	if m == nil {
		return Parsed{LookupKey: path}
	}

	format, _ := style.ParseFormat(m[3])
	return Parsed{
		LookupKey:      m[1] + "." + m[2],
		FormatOverride: format,
	}
}
