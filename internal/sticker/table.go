// Package sticker holds the category-to-sticker table used to decorate
// replies, and keeps it hot-reloadable.
//
// A table file maps each media category to either one sticker id or a list
// of ids:
//
//	{
//	  "greeting": ["111", "112"],
//	  "thinking": "113"
//	}
//
// JSON and YAML are both accepted. The live table is swapped atomically, so
// readers never see a partially loaded table.
package sticker

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// FallbackCategory is consulted when the requested category has no stickers.
const FallbackCategory = "cool"

// ErrEmptyCategory is returned when a table file lists a category with no
// sticker ids.
var ErrEmptyCategory = errors.New("sticker: empty category")

// Table is an immutable snapshot of category → sticker ids.
type Table struct {
	entries map[string][]string
}

// NewTable builds a Table from m. The input is copied. Unlike [Parse], it
// does not reject empty lists; lookups treat them as missing.
func NewTable(m map[string][]string) *Table {
	entries := make(map[string][]string, len(m))
	for k, v := range m {
		entries[k] = slices.Clone(v)
	}
	return &Table{entries: entries}
}

// Len returns the number of categories.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// IDs returns the sticker ids of category, or nil.
func (t *Table) IDs(category string) []string {
	if t == nil {
		return nil
	}
	return t.entries[category]
}

// Categories returns the category names in sorted order.
func (t *Table) Categories() []string {
	if t == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(t.entries))
}

// Parse decodes a table document from r. Each value must be a non-empty
// string or a non-empty list of non-empty strings; numeric scalars are
// accepted as ids. Every problem found is reported.
func Parse(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sticker: read table: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return NewTable(nil), nil
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("sticker: decode table: %w", err)
	}

	var errs []error
	entries := make(map[string][]string, len(raw))
	for category, node := range raw {
		ids, err := decodeIDs(&node)
		if err != nil {
			errs = append(errs, fmt.Errorf("category %q: %w", category, err))
			continue
		}
		entries[category] = ids
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("sticker: invalid table: %w", err)
	}
	return &Table{entries: entries}, nil
}

func decodeIDs(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		id, err := scalarID(n)
		if err != nil {
			return nil, err
		}
		return []string{id}, nil
	case yaml.SequenceNode:
		if len(n.Content) == 0 {
			return nil, ErrEmptyCategory
		}
		ids := make([]string, 0, len(n.Content))
		for i, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("entry %d: not a string", i)
			}
			id, err := scalarID(item)
			if err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			ids = append(ids, id)
		}
		return ids, nil
	default:
		return nil, errors.New("value must be a string or a list of strings")
	}
}

func scalarID(n *yaml.Node) (string, error) {
	switch n.ShortTag() {
	case "!!str", "!!int":
	default:
		return "", fmt.Errorf("unsupported value type %s", n.ShortTag())
	}
	id := strings.TrimSpace(n.Value)
	if id == "" {
		return "", ErrEmptyCategory
	}
	return id, nil
}
