// Package rules loads declarative rule documents.
//
// The built-in documents, one per programming model, are embedded in the
// binary. Custom documents may be loaded from disk in JSON or YAML.
package rules

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kylerisse/funcdoctor/pkg/detect"
	"github.com/kylerisse/funcdoctor/pkg/rule"
)

//go:embed assets/*.json
var assets embed.FS

var (
	// ErrNotFound means the rule document does not exist or cannot be read.
	ErrNotFound = errors.New("rule document not found")

	// ErrCorrupt means the rule document exists but is not a rule array.
	ErrCorrupt = errors.New("rule document is corrupt")
)

// LoadError describes a rule document that could not be loaded. It matches
// ErrNotFound or ErrCorrupt with errors.Is.
type LoadError struct {
	Name  string
	Kind  error
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("rules: %s: %v: %v", e.Name, e.Kind, e.Cause)
}

func (e *LoadError) Unwrap() []error {
	return []error{e.Kind, e.Cause}
}

// Loader reads rule documents named "<model>.json" from FS.
type Loader struct {
	FS fs.FS
}

// Default returns a Loader over the embedded documents.
func Default() *Loader {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		panic(fmt.Sprintf("rules: embedded assets: %v", err))
	}
	return &Loader{FS: sub}
}

// Load returns the rules for model sorted by check order.
func (l *Loader) Load(model detect.Model) ([]rule.Rule, error) {
	return l.LoadName(string(model) + ".json")
}

// LoadName reads and decodes the named document from the loader's FS.
func (l *Loader) LoadName(name string) ([]rule.Rule, error) {
	data, err := fs.ReadFile(l.FS, name)
	if err != nil {
		return nil, &LoadError{Name: name, Kind: ErrNotFound, Cause: err}
	}
	rules, err := Decode(data)
	if err != nil {
		return nil, &LoadError{Name: name, Kind: ErrCorrupt, Cause: err}
	}
	return rules, nil
}

// LoadFile reads a rule document from disk. Files ending in .yaml or .yml
// are decoded as YAML, everything else as JSON.
func LoadFile(path string) ([]rule.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Name: path, Kind: ErrNotFound, Cause: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, &LoadError{Name: path, Kind: ErrCorrupt, Cause: err}
		}
	}

	rules, err := Decode(data)
	if err != nil {
		return nil, &LoadError{Name: path, Kind: ErrCorrupt, Cause: err}
	}
	return rules, nil
}

// Decode parses a JSON rule array and sorts it by check order.
func Decode(data []byte) ([]rule.Rule, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("expected a JSON array of rules")
	}
	var rules []rule.Rule
	if err := json.Unmarshal(trimmed, &rules); err != nil {
		return nil, err
	}
	Sort(rules)
	return rules, nil
}

// Sort orders rules by check order, keeping document order for ties.
func Sort(rules []rule.Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Order() < rules[j].Order()
	})
}

// Merge overlays extra onto base. A rule in extra replaces the base rule
// with the same ID; the rest are appended. The result is sorted.
func Merge(base, extra []rule.Rule) []rule.Rule {
	index := make(map[string]int, len(base))
	out := make([]rule.Rule, len(base), len(base)+len(extra))
	copy(out, base)
	for i, r := range out {
		if r.ID != "" {
			index[r.ID] = i
		}
	}
	for _, r := range extra {
		if i, ok := index[r.ID]; ok && r.ID != "" {
			out[i] = r
			continue
		}
		out = append(out, r)
	}
	Sort(out)
	return out
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
