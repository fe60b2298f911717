package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shellbot/shellbot/pkg/types"
)

// DistrosFile is the on-disk distro table:
//
//	default: arch
//	distros:
//	  - name: alpine
//	    image: alpine:latest
type DistrosFile struct {
	Default string              `yaml:"default"`
	Distros []types.DistroEntry `yaml:"distros"`
}

// LoadDistrosFile reads and parses a distro table.
func LoadDistrosFile(path string) (*DistrosFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading distros file: %w", err)
	}
	var df DistrosFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return nil, fmt.Errorf("parsing distros file %s: %w", path, err)
	}
	if len(df.Distros) == 0 {
		return nil, fmt.Errorf("distros file %s lists no distros", path)
	}
	return &df, nil
}
