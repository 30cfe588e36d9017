// Package catalogs holds the built-in static lookup lists and loads extra ones
// from a directory of YAML files.
package catalogs

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtin embed.FS

// Catalog is one static list. Items is a JSON array whose objects keep the key
// order of the YAML source.
type Catalog struct {
	Key         string
	Name        string
	Description string
	Icon        string
	Items       json.RawMessage
}

type catalogFile struct {
	Key         string    `yaml:"key"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Icon        string    `yaml:"icon"`
	Items       yaml.Node `yaml:"items"`
}

// Builtin returns the embedded catalogs ordered by file name.
func Builtin() ([]Catalog, error) {
	entries, err := fs.ReadDir(builtin, "builtin")
	if err != nil {
		return nil, err
	}
	out := make([]Catalog, 0, len(entries))
	for _, e := range entries {
		data, err := builtin.ReadFile("builtin/" + e.Name())
		if err != nil {
			return nil, err
		}
		c, err := Parse(e.Name(), data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// LoadDir reads every *.yaml / *.yml file in dir. A missing dir yields nothing.
func LoadDir(dir string) ([]Catalog, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []Catalog
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		c, err := Parse(e.Name(), data)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Load merges the built-in catalogs with those in dir. A file in dir replaces
// the built-in catalog with the same key.
func Load(dir string) ([]Catalog, error) {
	base, err := Builtin()
	if err != nil {
		return nil, err
	}
	extra, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(base))
	for i, c := range base {
		index[c.Key] = i
	}
	for _, c := range extra {
		if i, ok := index[c.Key]; ok {
			base[i] = c
			continue
		}
		index[c.Key] = len(base)
		base = append(base, c)
	}
	return base, nil
}

// Parse decodes one catalog file. The key defaults to the file name.
func Parse(filename string, data []byte) (Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Catalog{}, fmt.Errorf("catalog %s: %w", filename, err)
	}
	key := strings.TrimSpace(f.Key)
	if key == "" {
		key = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	name := strings.TrimSpace(f.Name)
	if name == "" {
		name = key
	}

	items := json.RawMessage("[]")
	if f.Items.Kind != 0 {
		if f.Items.Kind != yaml.SequenceNode {
			return Catalog{}, fmt.Errorf("catalog %s: items must be a list", filename)
		}
		for _, item := range f.Items.Content {
			if item.Kind != yaml.MappingNode {
				return Catalog{}, fmt.Errorf("catalog %s: line %d: item must be a mapping", filename, item.Line)
			}
		}
		raw, err := nodeJSON(&f.Items)
		if err != nil {
			return Catalog{}, fmt.Errorf("catalog %s: %w", filename, err)
		}
		items = raw
	}
	return Catalog{Key: key, Name: name, Description: f.Description, Icon: f.Icon, Items: items}, nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// nodeJSON converts a YAML node to JSON, keeping mapping key order.
func nodeJSON(n *yaml.Node) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := writeNode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeNode(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeNode(buf, n.Content[0])
	case yaml.AliasNode:
		return writeNode(buf, n.Alias)
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeNode(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, _ := json.Marshal(n.Content[i].Value)
			buf.Write(k)
			buf.WriteByte(':')
			if err := writeNode(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		buf.Write(raw)
		return nil
	}
}
