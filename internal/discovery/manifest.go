package discovery

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

var errNotObject = errors.New("manifest is not an object")

type manifest struct {
	Main  string
	Start string
}

func parseManifest(name string, data []byte) (manifest, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return parseYAMLManifest(data)
	default:
		return parseJSONManifest(data)
	}
}

// parseJSONManifest reads a package.json style document: the entry point is
// "main", the start action "scripts.start".
func parseJSONManifest(data []byte) (manifest, error) {
	if !gjson.ValidBytes(data) {
		return manifest{}, errors.New("invalid JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return manifest{}, errNotObject
	}
	var m manifest
	if v := doc.Get("main"); v.Type == gjson.String {
		m.Main = strings.TrimSpace(v.Str)
	}
	if v := doc.Get("scripts.start"); v.Type == gjson.String {
		m.Start = strings.TrimSpace(v.Str)
	}
	return m, nil
}

type yamlManifest struct {
	Main    string            `yaml:"main"`
	Start   string            `yaml:"start"`
	Scripts map[string]string `yaml:"scripts"`
}

func parseYAMLManifest(data []byte) (manifest, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return manifest{}, err
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return manifest{}, errNotObject
	}
	var y yamlManifest
	if err := node.Content[0].Decode(&y); err != nil {
		return manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	m := manifest{Main: strings.TrimSpace(y.Main), Start: strings.TrimSpace(y.Start)}
	if m.Start == "" {
		m.Start = strings.TrimSpace(y.Scripts["start"])
	}
	return m, nil
}
