package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads every definition document of a YAML file.
func LoadFromFile(filename string) ([]ProcessDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %s: %w", filename, err)
	}
	definitions, err := LoadFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load definitions from %s: %w", filename, err)
	}
	for i := range definitions {
		if definitions[i].Metadata.Deployment == "" {
			definitions[i].Metadata.Deployment = filepath.Base(filename)
		}
	}
	return definitions, nil
}

// LoadFromBytes decodes one or more `---` separated definition documents.
// Each definition keeps its own document as schema so that version bumps can be detected.
func LoadFromBytes(data []byte) ([]ProcessDefinition, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	res := make([]ProcessDefinition, 0, 1)
	for {
		var node yaml.Node
		err := decoder.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode definition document: %w", err)
		}
		var definition ProcessDefinition
		if err := node.Decode(&definition); err != nil {
			return nil, fmt.Errorf("failed to decode definition document: %w", err)
		}
		schema, err := yaml.Marshal(&node)
		if err != nil {
			return nil, fmt.Errorf("failed to encode definition %s schema: %w", definition.Key, err)
		}
		definition.Metadata.Schema = string(schema)
		if definition.Metadata.Origin == "" {
			definition.Metadata.Origin = "yaml"
		}
		if err := definition.Validate(); err != nil {
			return nil, err
		}
		res = append(res, definition)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: no definition found", ErrIllegalArgument)
	}
	return res, nil
}
