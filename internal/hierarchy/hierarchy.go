// Package hierarchy holds the externally supplied tree that canopy lays out.
package hierarchy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned when a file extension is neither JSON nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported hierarchy format")

// Format identifies an on-disk encoding of a hierarchy.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Node is one entry of the input tree. Only ID and Children carry meaning;
// every other field is kept opaquely in Payload.
type Node struct {
	ID       string
	Children []*Node
	Payload  map[string]any
}

// Clone returns a deep copy of the subtree rooted at n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{ID: n.ID}
	if n.Payload != nil {
		c.Payload = cloneValue(n.Payload).(map[string]any)
	}
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return c
}

// Len returns the number of nodes in the subtree rooted at n.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	total := 0
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nil {
			continue
		}
		total++
		stack = append(stack, cur.Children...)
	}
	return total
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = cloneValue(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// UnmarshalJSON decodes id and children and keeps the remaining fields in Payload.
func (n *Node) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*n = Node{}
	for key, raw := range fields {
		switch key {
		case "id":
			id, err := decodeJSONID(raw)
			if err != nil {
				return fmt.Errorf("id: %w", err)
			}
			n.ID = id
		case "children":
			if err := json.Unmarshal(raw, &n.Children); err != nil {
				return fmt.Errorf("children of %q: %w", n.ID, err)
			}
		default:
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			if n.Payload == nil {
				n.Payload = make(map[string]any)
			}
			n.Payload[key] = v
		}
	}
	return nil
}

// decodeJSONID accepts string and numeric ids; null counts as absent.
func decodeJSONID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String(), nil
	}
	if strings.TrimSpace(string(raw)) == "null" {
		return "", nil
	}
	return "", fmt.Errorf("expected string, got %s", raw)
}

// MarshalJSON writes the node back in its input shape.
func (n *Node) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.Payload)+2)
	for k, v := range n.Payload {
		out[k] = v
	}
	if n.ID != "" {
		out["id"] = n.ID
	}
	if len(n.Children) > 0 {
		out["children"] = n.Children
	}
	return json.Marshal(out)
}

// UnmarshalYAML decodes a YAML mapping the same way UnmarshalJSON does.
func (n *Node) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", value.Line)
	}
	*n = Node{}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i].Value, value.Content[i+1]
		switch key {
		case "id":
			if val.Tag == "!!null" {
				continue
			}
			if err := val.Decode(&n.ID); err != nil {
				return fmt.Errorf("line %d: id: %w", val.Line, err)
			}
		case "children":
			if err := val.Decode(&n.Children); err != nil {
				return fmt.Errorf("line %d: children: %w", val.Line, err)
			}
		default:
			var v any
			if err := val.Decode(&v); err != nil {
				return err
			}
			if n.Payload == nil {
				n.Payload = make(map[string]any)
			}
			n.Payload[key] = v
		}
	}
	return nil
}

// FormatFromPath picks the decoder from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Parse decodes a hierarchy from data.
func Parse(data []byte, format Format) (*Node, error) {
	root := &Node{}
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, root)
	case FormatYAML:
		err = yaml.Unmarshal(data, root)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("hierarchy parse: %w", err)
	}
	return root, nil
}

// Load reads and decodes a hierarchy file.
func Load(path string) (*Node, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, format)
}

// LoadFS reads and decodes a hierarchy from an fs.FS, typically the embedded samples.
func LoadFS(fsys fs.FS, path string) (*Node, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	return Parse(data, format)
}

// Samples lists the hierarchy files available in fsys under dir, by base name without extension.
func Samples(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := FormatFromPath(e.Name()); err != nil {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names, nil
}
