package graph

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"flowparam/internal/fsutil"
)

// ErrParamAbsent indicates a parameter key is not defined in a step's
// configuration. Parameter edits are updates, not inserts: a key must
// already exist in the parameters mapping to be set.
var ErrParamAbsent = errors.New("parameter is not defined for this step")

// Parameter is one key/value entry from a step's parameters mapping.
type Parameter struct {
	Key   string
	Value string
}

// Document is a step's configure.yml held as a YAML node tree, so edits
// preserve key order, comments, and unrelated content across a round-trip.
type Document struct {
	path string
	root *yaml.Node
	mode os.FileMode
}

// LoadDocument reads and parses a step's configure.yml.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read step config: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse step config %s: %w", path, err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("step config %s is empty", path)
	}
	if root.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("step config %s is not a mapping", path)
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	return &Document{path: path, root: &root, mode: mode}, nil
}

// Path returns the file the document was loaded from.
func (d *Document) Path() string {
	return d.path
}

func (d *Document) top() *yaml.Node {
	return d.root.Content[0]
}

// Name returns the step name recorded in the config, if any.
func (d *Document) Name() string {
	if n := mappingValue(d.top(), "name"); n != nil && n.Kind == yaml.ScalarNode {
		return n.Value
	}
	return ""
}

// Commands returns the step's command list, if any.
func (d *Document) Commands() []string {
	seq := mappingValue(d.top(), "commands")
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]string, 0, len(seq.Content))
	for _, item := range seq.Content {
		if item.Kind == yaml.ScalarNode {
			out = append(out, item.Value)
		}
	}
	return out
}

// Parameters returns the parameters mapping in document order.
func (d *Document) Parameters() []Parameter {
	params := mappingValue(d.top(), "parameters")
	if params == nil || params.Kind != yaml.MappingNode {
		return nil
	}
	out := make([]Parameter, 0, len(params.Content)/2)
	for i := 0; i+1 < len(params.Content); i += 2 {
		out = append(out, Parameter{
			Key:   params.Content[i].Value,
			Value: params.Content[i+1].Value,
		})
	}
	return out
}

// HasParameter reports whether key exists in the parameters mapping.
func (d *Document) HasParameter(key string) bool {
	params := mappingValue(d.top(), "parameters")
	if params == nil || params.Kind != yaml.MappingNode {
		return false
	}
	return mappingValue(params, key) != nil
}

// SetParameter overwrites the value of an existing parameter key.
// Returns ErrParamAbsent if the key is not already defined.
func (d *Document) SetParameter(key, value string) error {
	params := mappingValue(d.top(), "parameters")
	if params == nil || params.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: config has no parameters mapping", ErrParamAbsent)
	}
	target := mappingValue(params, key)
	if target == nil {
		return fmt.Errorf("%w: %q", ErrParamAbsent, key)
	}

	target.Kind = yaml.ScalarNode
	target.Tag = guessTag(value)
	target.Value = value
	target.Content = nil
	target.Style = 0
	return nil
}

// Encode renders the document back to YAML.
func (d *Document) Encode() ([]byte, error) {
	return yaml.Marshal(d.root)
}

// Save writes the document back to its file via an atomic replace. The
// previous contents are kept alongside as <path>.bak so a bad interactive
// edit can be undone by hand.
func (d *Document) Save() error {
	data, err := d.Encode()
	if err != nil {
		return fmt.Errorf("encode step config: %w", err)
	}
	if err := fsutil.WriteFileAtomicWithBackup(d.path, data, d.mode); err != nil {
		return fmt.Errorf("write step config %s: %w", d.path, err)
	}
	return nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func guessTag(v string) string {
	if v == "true" || v == "false" {
		return "!!bool"
	}
	// Check for integer
	isDigit := true
	for i, c := range v {
		if i == 0 && c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			isDigit = false
			break
		}
	}
	if isDigit && v != "" && v != "-" {
		return "!!int"
	}
	// Floats are common for flow parameters (clock periods, utilization targets).
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return "!!float"
	}
	return "!!str"
}
