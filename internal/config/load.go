package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse decodes options from YAML, applies defaults for omitted fields, and
// validates the result. Unknown fields are rejected so that a typoed option
// fails loudly instead of silently falling back to a default.
func Parse(data []byte) (Options, error) {
	var o Options
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&o); err != nil && !errors.Is(err, io.EOF) {
		return Options{}, fmt.Errorf("failed to parse options: %w", err)
	}
	o = o.WithDefaults()
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// Load reads and parses an options file.
func Load(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("failed to read options file: %w", err)
	}
	return Parse(data)
}
