package convnet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cnnbench/cnnbench/ml"
)

// Definition is the portable form of a network: its input and the ordered
// builder calls. It round-trips through JSON and YAML.
type Definition struct {
	Name       string        `json:"name,omitempty" yaml:"name,omitempty"`
	Input      []int         `json:"input" yaml:"input,flow"`
	DataFormat ml.DataFormat `json:"data_format" yaml:"data_format"`
	PhaseTrain bool          `json:"phase_train,omitempty" yaml:"phase_train,omitempty"`
	Layers     []LayerSpec   `json:"layers" yaml:"layers"`
}

// Build replays the definition through a Builder.
func (d *Definition) Build() (*Network, error) {
	b := NewBuilder(ml.Shape(d.Input), d.DataFormat, d.PhaseTrain)
	for _, spec := range d.Layers {
		b.add(spec.withDefaults(), nil)
	}

	n, err := b.Network()
	if err != nil {
		return nil, err
	}
	n.Name = d.Name
	return n, nil
}

// WithBatchSize returns a copy of d whose input carries batch size n.
// Reshape targets are left alone, so they should keep -1 in the batch
// position to follow it.
func (d *Definition) WithBatchSize(n int) *Definition {
	c := *d
	c.Input = append([]int(nil), d.Input...)
	if len(c.Input) > 0 {
		c.Input[0] = n
	}
	c.Layers = append([]LayerSpec(nil), d.Layers...)
	return &c
}

// Encode writes the definition as "json" or "yaml".
func (d *Definition) Encode(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("convnet: unknown definition format %q", format)
	}
}

// ParseDefinition decodes a JSON or YAML definition. JSON is detected by a
// leading brace.
func ParseDefinition(data []byte) (*Definition, error) {
	var d Definition
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("convnet: decode json: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(trimmed))
		dec.KnownFields(true)
		if err := dec.Decode(&d); err != nil {
			return nil, fmt.Errorf("convnet: decode yaml: %w", err)
		}
	}

	if d.DataFormat == "" {
		d.DataFormat = ml.NCHW
	}
	return &d, nil
}

// ReadDefinitionFile parses the JSON or YAML definition stored at path.
func ReadDefinitionFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	d, err := ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}
