package processor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Extensions the file loader understands
var supportedExtensions = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
}

// LoadFile reads the link requests in one file. A file holds a {document_id, entity_bag}
// envelope, a list of envelopes, or a bare entity bag named after the file.
func LoadFile(path string) ([]models.LinkDocumentRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	requests, err := decodeRequests(data, documentIDFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return requests, nil
}

func decodeRequests(data []byte, fallbackID string) ([]models.LinkDocumentRequest, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("file is empty")
	}

	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		requests := make([]models.LinkDocumentRequest, 0, len(items))
		for i, item := range items {
			req, err := decodeRequest(item, "")
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			requests = append(requests, req)
		}
		return requests, nil
	}

	req, err := decodeRequest(data, fallbackID)
	if err != nil {
		return nil, err
	}
	return []models.LinkDocumentRequest{req}, nil
}

func decodeRequest(data []byte, fallbackID string) (models.LinkDocumentRequest, error) {
	var envelope struct {
		DocumentID string          `json:"document_id"`
		EntityBag  json.RawMessage `json:"entity_bag"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return models.LinkDocumentRequest{}, err
	}

	bagJSON := []byte(envelope.EntityBag)
	if len(bagJSON) == 0 || string(bagJSON) == "null" {
		bagJSON = data
	}
	var bag models.EntityBag
	if err := json.Unmarshal(bagJSON, &bag); err != nil {
		return models.LinkDocumentRequest{}, err
	}

	id := strings.TrimSpace(envelope.DocumentID)
	if id == "" {
		id = fallbackID
	}
	if id == "" {
		return models.LinkDocumentRequest{}, fmt.Errorf("document_id is required")
	}
	return models.LinkDocumentRequest{DocumentID: id, EntityBag: &bag}, nil
}

// yamlToJSON re-encodes YAML as JSON so both formats share the lenient bag decoder. Unquoted
// timestamps stay as written so a YAML date reads the same as its JSON string.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	v, err := yamlValue(&doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func yamlValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return yamlValue(n.Content[0])
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := yamlValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := yamlValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!timestamp":
			return n.Value, nil
		case "!!null":
			return nil, nil
		}
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	}
	return nil, nil
}

func documentIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ExpandPaths turns files and directories into the list of loadable files. Directories are
// walked recursively in lexical order.
func ExpandPaths(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(filepath.Clean(root))
			continue
		}
		err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && supportedExtensions[strings.ToLower(filepath.Ext(path))] {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
