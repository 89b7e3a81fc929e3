package toolutils

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// ReadYaml decodes a YAML file into dest. Unknown keys are rejected.
func ReadYaml(dest any, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("unable to open configuration file: %w", err)
	}
	defer f.Close()

	if err = decodeYaml(dest, f); err != nil {
		return fmt.Errorf("unable to parse configuration file %s: %w", file, err)
	}
	return nil
}

// ParseYaml decodes an in-memory YAML document into dest.
func ParseYaml(dest any, doc []byte) error {
	return decodeYaml(dest, bytes.NewReader(doc))
}

func decodeYaml(dest any, r io.Reader) error {
	dec := yaml.NewDecoder(r, yaml.Strict())
	if err := dec.Decode(dest); err != nil && err != io.EOF {
		return err
	}
	return nil
}
