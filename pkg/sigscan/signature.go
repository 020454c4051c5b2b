// Package sigscan pattern-matches database rows and files against a malware
// signature set under memory and time bounds.
package sigscan

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed signatures.yaml
var embeddedSignatures []byte

// Definition is the YAML shape of one signature.
type Definition struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
	Severity    string `yaml:"severity"`
	Pattern     string `yaml:"pattern"`
}

// Signature is an immutable compiled pattern. The signature set is loaded
// once per process and treated as read-only.
type Signature struct {
	ID          string
	Description string
	Severity    string
	re          *regexp.Regexp
}

// Set is an immutable collection of signatures. Construct one explicitly and
// inject it; tests substitute small fixed sets.
type Set struct {
	sigs []Signature
}

type setFile struct {
	Signatures []Definition `yaml:"signatures"`
}

// NewSet compiles definitions into a Set.
func NewSet(defs []Definition) (*Set, error) {
	sigs := make([]Signature, 0, len(defs))
	for _, d := range defs {
		if d.ID == "" || d.Pattern == "" {
			return nil, fmt.Errorf("signature requires id and pattern")
		}
		re, err := regexp.Compile(d.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile signature %q: %w", d.ID, err)
		}
		sigs = append(sigs, Signature{
			ID:          d.ID,
			Description: d.Description,
			Severity:    d.Severity,
			re:          re,
		})
	}
	return &Set{sigs: sigs}, nil
}

// LoadSet reads a signature file. An empty path selects the embedded
// default set.
func LoadSet(path string) (*Set, error) {
	data := embeddedSignatures
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read signature file: %w", err)
		}
	}

	var f setFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse signature file: %w", err)
	}
	if len(f.Signatures) == 0 {
		return nil, fmt.Errorf("signature file defines no signatures")
	}
	return NewSet(f.Signatures)
}

// Len returns the number of signatures in the set.
func (s *Set) Len() int {
	return len(s.sigs)
}
