package batch

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/leoforge/internal/refinement"
)

// Job is one entry of a batch file.
type Job struct {
	Name        string   `yaml:"name"`
	Query       string   `yaml:"query"`
	Type        string   `yaml:"type"`
	Constraints []string `yaml:"constraints"`
}

// Label identifies the job in logs and reports.
func (j Job) Label() string {
	if j.Name != "" {
		return j.Name
	}
	runes := []rune(j.Query)
	if len(runes) > 40 {
		return string(runes[:40]) + "..."
	}
	return j.Query
}

// ToQuery converts the job into a refinement query.
func (j Job) ToQuery() refinement.Query {
	return refinement.Query{
		Text:        strings.TrimSpace(j.Query),
		Category:    strings.TrimSpace(j.Type),
		Constraints: j.Constraints,
	}
}

type jobFile struct {
	Jobs []Job `yaml:"jobs"`
}

// ParseJobs decodes a batch payload of the form:
//
//	jobs:
//	  - name: token
//	    query: Create a fungible token with mint and transfer
//	    type: token
func ParseJobs(data []byte) ([]Job, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("batch: job file is empty")
	}
	var f jobFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("batch: decode jobs: %w", err)
	}
	if len(f.Jobs) == 0 {
		return nil, fmt.Errorf("batch: no jobs defined")
	}
	seen := make(map[string]int, len(f.Jobs))
	for i, j := range f.Jobs {
		if strings.TrimSpace(j.Query) == "" {
			return nil, fmt.Errorf("batch: job %d has no query", i+1)
		}
		if j.Name == "" {
			continue
		}
		if prev, ok := seen[j.Name]; ok {
			return nil, fmt.Errorf("batch: job %d reuses the name %q of job %d", i+1, j.Name, prev+1)
		}
		seen[j.Name] = i
	}
	return f.Jobs, nil
}

// LoadJobs reads and parses a batch file.
func LoadJobs(path string) ([]Job, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("batch: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("batch: %s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("batch: read %s: %w", path, err)
	}
	jobs, err := ParseJobs(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}
