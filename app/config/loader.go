package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader reads and validates source definitions from a directory.
type Loader struct {
	sourcesDir string
}

func NewLoader(sourcesDir string) *Loader {
	return &Loader{sourcesDir: sourcesDir}
}

// LoadAll loads every YAML definition file from the sources directory.
// A missing directory is not an error; it yields an empty list.
func (l *Loader) LoadAll() ([]*SourceDefinition, error) {
	if _, err := os.Stat(l.sourcesDir); os.IsNotExist(err) {
		return nil, nil
	}

	files, err := filepath.Glob(filepath.Join(l.sourcesDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YAML files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(l.sourcesDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find YML files: %w", err)
	}
	files = append(files, ymlFiles...)

	defs := make([]*SourceDefinition, 0, len(files))
	for _, file := range files {
		def, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error loading %s: %w", file, err)
		}

		if err := l.validate(def); err != nil {
			return nil, fmt.Errorf("invalid source definition %s: %w", file, err)
		}

		defs = append(defs, def)
		slog.Debug("Source definition loaded", "key", def.Key, "url", def.URL, "enabled", def.Enabled)
	}

	return defs, nil
}

func (l *Loader) loadFile(path string) (*SourceDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var def SourceDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Base(path)
	def.Key = strings.TrimSuffix(base, filepath.Ext(base))

	if def.Name == "" {
		def.Name = def.Key
	}
	if def.Type == "" {
		def.Type = "rss"
	}

	return &def, nil
}

func (l *Loader) validate(def *SourceDefinition) error {
	if def.URL == "" {
		return fmt.Errorf("source URL is required")
	}
	if def.Type != "rss" {
		return fmt.Errorf("unsupported source type: %s", def.Type)
	}
	if def.FetchInterval != nil && *def.FetchInterval <= 0 {
		return fmt.Errorf("fetch interval must be positive")
	}
	return nil
}
