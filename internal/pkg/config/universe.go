package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Security is one entry of the tracked universe.
type Security struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// Universe lists the securities to stream and rank, plus the benchmark used for beta.
type Universe struct {
	Benchmark  string     `yaml:"benchmark"`
	Securities []Security `yaml:"securities"`
}

// LoadUniverse reads a YAML universe file.
func LoadUniverse(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}

	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse universe: %w", err)
	}

	seen := make(map[string]bool, len(u.Securities))
	out := u.Securities[:0]
	for _, s := range u.Securities {
		if s.Code == "" {
			return nil, fmt.Errorf("universe entry without code (name=%q)", s.Name)
		}
		if seen[s.Code] {
			continue
		}
		seen[s.Code] = true
		out = append(out, s)
	}
	u.Securities = out

	if len(u.Securities) == 0 {
		return nil, fmt.Errorf("universe %s is empty", path)
	}
	return &u, nil
}

// Codes returns the security codes in file order.
func (u *Universe) Codes() []string {
	codes := make([]string, len(u.Securities))
	for i, s := range u.Securities {
		codes[i] = s.Code
	}
	return codes
}
