package calibration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const metadataKey = "calibration"

// File is a calibration record on disk. The extension selects the codec.
type File struct {
	Path string
}

// Load reads and validates the calibration file at path.
func Load(path string) (*Calibration, error) {
	return File{Path: path}.Load()
}

// Load reads and validates the calibration record.
func (f File) Load() (*Calibration, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, f.Path)
		}
		return nil, err
	}

	var cfg Calibration
	switch f.format() {
	case "json":
		err = json.Unmarshal(data, &cfg)
	case "yaml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, f.Path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return &cfg, nil
}

// SaveMetadata replaces the calibration key of the file with meta and leaves
// every other key as it was. The file is replaced atomically.
func (f File) SaveMetadata(meta Metadata) error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return err
	}

	var out []byte
	switch f.format() {
	case "json":
		out, err = rewriteJSON(data, meta)
	case "yaml":
		out, err = rewriteYAML(data, meta)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f.Path)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, f.Path, err)
	}

	return writeAtomic(f.Path, out)
}

func (f File) format() string {
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".json":
		return "json"
	case ".yaml", ".yml":
		return "yaml"
	}
	return ""
}

func rewriteJSON(data []byte, meta Metadata) ([]byte, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	doc[metadataKey] = raw

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// rewriteYAML edits the node tree so key order and comments survive.
func rewriteYAML(data []byte, meta Metadata) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.New("top level is not a mapping")
	}
	root := doc.Content[0]

	var value yaml.Node
	if err := value.Encode(meta); err != nil {
		return nil, err
	}

	replaced := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == metadataKey {
			root.Content[i+1] = &value
			replaced = true
			break
		}
	}
	if !replaced {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: metadataKey}
		root.Content = append(root.Content, key, &value)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeAtomic(path string, data []byte) (err error) {
	mode := fs.FileMode(0o644)
	if info, statErr := os.Stat(path); statErr == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
