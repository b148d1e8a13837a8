package dataset

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tabularml/workbench/pkg/common/apperr"
)

// RegistryEntry describes one built-in dataset available without an upload.
type RegistryEntry struct {
	Key     string `yaml:"key" json:"key"`
	Name    string `yaml:"name" json:"name"`
	File    string `yaml:"file" json:"-"`
	License string `yaml:"license" json:"license"`
}

type registryConfig struct {
	Datasets []RegistryEntry `yaml:"datasets"`
}

// Registry resolves built-in dataset keys to frames. Entries may come from
// a YAML file next to on-disk CSVs, or from the compiled-in samples.
type Registry struct {
	entries []RegistryEntry
	baseDir string
}

// LoadRegistry reads a YAML registry file. An empty path yields the
// compiled-in defaults.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return defaultRegistry(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var cfg registryConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Datasets) == 0 {
		return defaultRegistry(), nil
	}
	return &Registry{entries: cfg.Datasets, baseDir: filepath.Dir(path)}, nil
}

// List returns registry entries with row/column counts resolved.
func (r *Registry) List() ([]map[string]interface{}, error) {
	out := make([]map[string]interface{}, 0, len(r.entries))
	for _, entry := range r.entries {
		frame, err := r.Load(entry.Key)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]interface{}{
			"key":     entry.Key,
			"name":    entry.Name,
			"rows":    frame.Rows(),
			"cols":    frame.Cols(),
			"license": entry.License,
		})
	}
	return out, nil
}

// Load parses the dataset registered under key into a fresh frame.
func (r *Registry) Load(key string) (*Frame, error) {
	for _, entry := range r.entries {
		if entry.Key != key {
			continue
		}
		if entry.File != "" {
			content, err := os.ReadFile(filepath.Clean(filepath.Join(r.baseDir, entry.File)))
			if err != nil {
				return nil, apperr.Wrap(err)
			}
			return ParseCSV(content, Limits{})
		}
		if sample, ok := sampleDatasets[entry.Key]; ok {
			return ParseCSV([]byte(sample), Limits{})
		}
		break
	}
	return nil, apperr.New(apperr.KindInvalidRequest, "unknown dataset key %q", key)
}

func defaultRegistry() *Registry {
	return &Registry{entries: []RegistryEntry{
		{Key: "iris", Name: "Iris", License: "CC BY 4.0"},
		{Key: "wine_quality", Name: "Wine Quality (sample)", License: "CC BY 4.0"},
	}}
}

var sampleDatasets = map[string]string{
	"iris": `sepal_length,sepal_width,petal_length,petal_width,species
5.1,3.5,1.4,0.2,setosa
4.9,3.0,1.4,0.2,setosa
4.7,3.2,1.3,0.2,setosa
4.6,3.1,1.5,0.2,setosa
5.0,3.6,1.4,0.2,setosa
5.4,3.9,1.7,0.4,setosa
4.6,3.4,1.4,0.3,setosa
5.0,3.4,1.5,0.2,setosa
7.0,3.2,4.7,1.4,versicolor
6.4,3.2,4.5,1.5,versicolor
6.9,3.1,4.9,1.5,versicolor
5.5,2.3,4.0,1.3,versicolor
6.5,2.8,4.6,1.5,versicolor
5.7,2.8,4.5,1.3,versicolor
6.3,3.3,4.7,1.6,versicolor
4.9,2.4,3.3,1.0,versicolor
6.3,3.3,6.0,2.5,virginica
5.8,2.7,5.1,1.9,virginica
7.1,3.0,5.9,2.1,virginica
6.3,2.9,5.6,1.8,virginica
6.5,3.0,5.8,2.2,virginica
7.6,3.0,6.6,2.1,virginica
4.9,2.5,4.5,1.7,virginica
7.3,2.9,6.3,1.8,virginica
`,
	"wine_quality": `fixed_acidity,volatile_acidity,citric_acid,residual_sugar,alcohol,quality
7.4,0.70,0.00,1.9,9.4,5
7.8,0.88,0.00,2.6,9.8,5
7.8,0.76,0.04,2.3,9.8,5
11.2,0.28,0.56,1.9,9.8,6
7.4,0.66,0.00,1.8,9.4,5
7.9,0.60,0.06,1.6,9.4,5
7.3,0.65,0.00,1.2,10.0,7
7.8,0.58,0.02,2.0,9.5,7
6.7,0.58,0.08,1.8,9.2,5
7.5,0.50,0.36,6.1,10.5,5
5.6,0.615,0.00,1.6,9.9,5
7.8,0.61,0.29,1.6,9.1,5
8.9,0.62,0.18,3.8,9.2,5
8.1,0.56,0.28,1.7,10.1,6
7.4,0.59,0.08,4.4,9.0,4
7.9,0.32,0.51,1.8,9.5,6
`,
}
