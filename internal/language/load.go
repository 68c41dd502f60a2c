package language

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileSchema is the on-disk shape of a languages file:
//
//	languages:
//	  java:
//	    command: [java]
//	    extension: .java
//	    mimeType: text/x-java
type fileSchema struct {
	Languages map[string]Descriptor `yaml:"languages"`
}

// LoadFile returns the built-in table merged with the descriptors found in
// the YAML file at path. Entries in the file override built-ins.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read languages file: %w", err)
	}
	return Parse(data)
}

// Parse merges YAML encoded descriptors over the built-in table.
func Parse(data []byte) (*Registry, error) {
	var schema fileSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse languages file: %w", err)
	}

	descriptors := append([]Descriptor(nil), builtin...)
	for id, d := range schema.Languages {
		d.ID = id
		if d.MimeType == "" {
			d.MimeType = defaultMimeType
		}
		descriptors = append(descriptors, d)
	}
	return New(descriptors...)
}
