// Package eval runs scripted question suites against the QA pipeline and
// reports which expectations held. Suites are YAML files so non-developers
// can add regression questions without touching Go code.
package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Case is a single scripted question with its expectations. Every
// expectation field is optional; an empty case only checks that Ask
// returns without error.
type Case struct {
	Name             string   `yaml:"name" json:"name"`
	Question         string   `yaml:"question" json:"question"`
	ExpectFound      *bool    `yaml:"expect_found,omitempty" json:"expect_found,omitempty"`
	ExpectContains   []string `yaml:"expect_contains,omitempty" json:"expect_contains,omitempty"`
	ExpectNotContain []string `yaml:"expect_not_contains,omitempty" json:"expect_not_contains,omitempty"`
}

type Suite struct {
	Name  string `yaml:"name" json:"name"`
	Cases []Case `yaml:"cases" json:"cases"`
}

// LoadSuite reads and validates one suite file. Unlike optional data
// directories, a named suite that cannot be loaded is a hard error.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}

	var suite Suite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parse suite %s: %w", path, err)
	}

	if len(suite.Cases) == 0 {
		return nil, fmt.Errorf("suite %s has no cases", path)
	}
	for i := range suite.Cases {
		c := &suite.Cases[i]
		if c.Question == "" {
			return nil, fmt.Errorf("suite %s: case %d has no question", path, i+1)
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("case-%d", i+1)
		}
	}
	return &suite, nil
}
