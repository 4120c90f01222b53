package profile

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/obc-part9.yaml
var defaultProfileYAML []byte

// DefaultID is the id of the built-in profile.
const DefaultID = "obc-part9"

// Default returns a fresh copy of the built-in Ontario Building Code Part 9 profile.
func Default() *Profile {
	p, err := Parse(defaultProfileYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in profile: %v", err))
	}
	return p
}

// Parse decodes, validates and compiles a YAML profile.
func Parse(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	if err := p.Compile(); err != nil {
		return nil, fmt.Errorf("compiling profile %q: %w", p.ProfileID, err)
	}
	return &p, nil
}
