package style

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrConfig = errors.New("invalid style configuration")

// ConfigError reports a malformed style source. It matches ErrConfig.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("style source %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfig, e.Err}
}

type rawDefinition struct {
	Name            string                 `yaml:"name" validate:"required"`
	Transformations []map[string]yaml.Node `yaml:"transformations"`
	Output          string                 `yaml:"output"`
}

type rawResize struct {
	Width  int `yaml:"width" validate:"gte=0"`
	Height int `yaml:"height" validate:"gte=0"`
}

var validate = validator.New()

// Load reads all style sources in dir in lexical order. Hidden files and
// subdirectories are skipped; any other file must be YAML or JSON.
func Load(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{Source: dir, Err: fmt.Errorf("read style directory: %w", err)}
	}

	defs := make([]Definition, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		source := filepath.Join(dir, entry.Name())
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			return nil, &ConfigError{Source: source, Err: errors.New("unsupported style file extension")}
		}

		data, err := os.ReadFile(source)
		if err != nil {
			return nil, &ConfigError{Source: source, Err: fmt.Errorf("read style file: %w", err)}
		}

		def, err := Decode(data, source)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Decode parses a single YAML or JSON style source.
func Decode(data []byte, source string) (Definition, error) {
	var raw rawDefinition
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty style source")
		}
		return Definition{}, &ConfigError{Source: source, Err: err}
	}
	if err := validate.Struct(raw); err != nil {
		return Definition{}, &ConfigError{Source: source, Err: err}
	}

	def := Definition{
		Name:            strings.TrimSpace(raw.Name),
		Transformations: make([]Step, 0, len(raw.Transformations)),
	}
	if def.Name == "" {
		return Definition{}, &ConfigError{Source: source, Err: errors.New("name is blank")}
	}
	if strings.TrimSpace(raw.Output) != "" {
		format, ok := ParseFormat(raw.Output)
		if !ok {
			return Definition{}, &ConfigError{Source: source, Err: fmt.Errorf("unsupported output %q", raw.Output)}
		}
		def.Output = format
	}

	for i, entry := range raw.Transformations {
		step, err := decodeStep(entry)
		if err != nil {
			return Definition{}, &ConfigError{Source: source, Err: fmt.Errorf("transformations[%d]: %w", i, err)}
		}
		def.Transformations = append(def.Transformations, step)
	}
	return def, nil
}

func decodeStep(entry map[string]yaml.Node) (Step, error) {
	if len(entry) != 1 {
		return Step{}, fmt.Errorf("expected exactly one step key, got %d", len(entry))
	}

	for key, node := range entry {
		switch StepKind(key) {
		case StepResize:
			var params rawResize
			if err := decodeStrict(&node, &params); err != nil {
				return Step{}, fmt.Errorf("decode resize: %w", err)
			}
			if err := validate.Struct(params); err != nil {
				return Step{}, fmt.Errorf("resize: %w", err)
			}
			if params.Width == 0 && params.Height == 0 {
				return Step{}, errors.New("resize requires width or height")
			}
			return Resize(params.Width, params.Height), nil
		case StepMax:
			if !isEmptyPayload(&node) {
				return Step{}, errors.New("max takes no parameters")
			}
			return Max(), nil
		case StepEmbedWhite:
			if !isEmptyPayload(&node) {
				return Step{}, errors.New("embedWhite takes no parameters")
			}
			return EmbedWhite(), nil
		default:
			return Step{}, fmt.Errorf("unknown step %q", key)
		}
	}
	return Step{}, errors.New("empty step")
}

// decodeStrict decodes node into out, rejecting keys out does not declare.
// yaml.Node.Decode has no KnownFields switch, so the node is re-encoded.
func decodeStrict(node *yaml.Node, out any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func isEmptyPayload(node *yaml.Node) bool {
	switch node.Kind {
	case 0:
		return true
	case yaml.MappingNode:
		return len(node.Content) == 0
	case yaml.ScalarNode:
		return node.Tag == "!!null"
	default:
		return false
	}
}
