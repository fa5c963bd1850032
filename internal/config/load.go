package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the pipeline definition looked up when none is given.
const DefaultFile = "stagegate.yaml"

// Load reads and parses a stagegate.yaml file into a Pipeline.
// Unknown fields are rejected. It performs no validation; call Validate
// separately.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config: parse %s", path)
	}
	return def, nil
}

// Parse decodes a pipeline definition from YAML bytes.
func Parse(data []byte) (*Pipeline, error) {
	var def Pipeline
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &def, nil
}
