package config

// SourceDefinition describes one configured feed source. Definitions live as
// YAML files in the sources directory and are registered into the source
// directory at startup; the file name (without extension) is the definition key.
type SourceDefinition struct {
	Key            string            // Derived from filename (without .yml extension)
	Name           string            `yaml:"name"`
	URL            string            `yaml:"url"`
	Type           string            `yaml:"type"`
	Enabled        bool              `yaml:"enabled"`
	FetchInterval  *int              `yaml:"fetch_interval"` // seconds, nil means no source-specific schedule
	ExtractContent bool              `yaml:"extract_content"`
	Params         map[string]string `yaml:"params"`
}
