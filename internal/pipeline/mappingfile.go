package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"compsheet/internal"
)

type MappingFile struct {
	Source  string                 `json:"source,omitempty" yaml:"source,omitempty"`
	Mapping internal.HeaderMapping `json:"mapping" yaml:"mapping"`
}

// LoadMappingFile reads a mapping from .yaml/.yml or .json. Entries are kept
// as written; a field name that is not canonical leaves its header unmapped
// and is reported by UnknownEntries. Extra document keys are ignored.
func LoadMappingFile(path string) (MappingFile, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return MappingFile{}, err
	}

	var mf MappingFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(blob, &mf); err != nil {
			return MappingFile{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(blob, &mf); err != nil {
			return MappingFile{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return MappingFile{}, fmt.Errorf("%s: %w", path, ErrUnsupportedInput)
	}

	if len(mf.Mapping) == 0 {
		return MappingFile{}, fmt.Errorf("%s: %w", path, ErrMappingEmpty)
	}
	return mf, nil
}

func (mf MappingFile) UnknownEntries() []internal.MappingEntry {
	var out []internal.MappingEntry
	for _, e := range mf.Mapping {
		if e.Field != "" && !e.Field.Valid() {
			out = append(out, e)
		}
	}
	return out
}

func SaveMappingFile(path string, mf MappingFile) error {
	var blob []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		blob, err = yaml.Marshal(mf)
	case ".json":
		blob, err = json.MarshalIndent(mf, "", "  ")
	default:
		return fmt.Errorf("%s: %w", path, ErrUnsupportedInput)
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, blob, 0o644)
}
