package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrKeyNotFound is returned when a pointer does not resolve in a document.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidJSON is returned when a configuration file is not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON")
)

// SplitPointer splits a dotted pointer such as "$.extensions.durableTask"
// into its keys. A leading "$." or "$" is ignored.
func SplitPointer(pointer string) []string {
	pointer = strings.TrimPrefix(pointer, "$")
	pointer = strings.TrimPrefix(pointer, ".")
	if pointer == "" {
		return nil
	}
	var keys []string
	for _, key := range strings.Split(pointer, ".") {
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// Resolve walks doc along pointer. Objects are indexed by key and arrays by
// decimal index.
func Resolve(doc any, pointer string) (any, bool) {
	cur := doc
	for _, key := range SplitPointer(pointer) {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// ReadJSON reads and decodes a JSON document from rel.
func (p *Project) ReadJSON(rel string) (any, error) {
	data, err := p.ReadFile(rel)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("project: %q: %w: %v", rel, ErrInvalidJSON, err)
	}
	return doc, nil
}

// LookupJSON reads the JSON file rel and resolves pointer inside it.
func (p *Project) LookupJSON(rel, pointer string) (any, error) {
	doc, err := p.ReadJSON(rel)
	if err != nil {
		return nil, err
	}
	v, ok := Resolve(doc, pointer)
	if !ok {
		return nil, fmt.Errorf("project: %q has no %q: %w", rel, pointer, ErrKeyNotFound)
	}
	return v, nil
}

// FormatValue renders a decoded JSON value the way it is compared against
// rule values: strings verbatim, everything else as compact JSON.
func FormatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
