package types

import (
	"github.com/tu-nv/action-classifier/logger"
	"errors"
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	// model sources
	SourceFile = "file"
	SourceS3   = "s3"
)

var ErrInvalidConfig = errors.New("invalid model configuration")

// Configuration describes one named model. The name is the file name
// without the .yaml extension.
type Configuration struct {
	Name     string `yaml:"-" json:"name"`
	FilePath string `yaml:"-" json:"file_path"`
	Source   string `yaml:"source" json:"source"`
	// Path is a filesystem path for file sources (relative paths resolve
	// against the configuration directory) or an object key for s3.
	Path string `yaml:"path" json:"path"`
	// Labels name the classes by index. May be empty.
	Labels []string `yaml:"labels" json:"labels"`
	// Overrides is a JSON merge patch applied to the model record before
	// it is validated.
	Overrides        map[string]interface{} `yaml:"overrides" json:"overrides,omitempty"`
	CachePredictions bool                   `yaml:"cache_predictions" json:"cache_predictions"`
}

func (cfg Configuration) Validate() error {
	if cfg.Name == "" {
		return fmt.Errorf("%w: empty model name", ErrInvalidConfig)
	}
	if cfg.Source != SourceFile && cfg.Source != SourceS3 {
		return fmt.Errorf("%w: model %s has unknown source %q", ErrInvalidConfig, cfg.Name, cfg.Source)
	}
	if cfg.Path == "" {
		return fmt.Errorf("%w: model %s has no path", ErrInvalidConfig, cfg.Name)
	}
	return nil
}

// Label returns the configured label for class or the class index as text.
func (cfg Configuration) Label(class int) string {
	if class >= 0 && class < len(cfg.Labels) {
		return cfg.Labels[class]
	}
	return fmt.Sprintf("%d", class)
}

// ResolvedPath returns Path for s3 sources and an absolute-or-config-relative
// path for file sources.
func (cfg Configuration) ResolvedPath() string {
	if cfg.Source != SourceFile || filepath.IsAbs(cfg.Path) || cfg.FilePath == "" {
		return cfg.Path
	}
	return filepath.Join(filepath.Dir(cfg.FilePath), cfg.Path)
}

func ParseConfiguration(name string, buf []byte) (Configuration, error) {
	cfg := Configuration{Name: name, Source: SourceFile}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return Configuration{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
	}
	if err := cfg.Validate(); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// LoadConfigurations reads every *.yaml file of dirPath. Files that fail to
// parse are logged and skipped; the result is sorted by name.
func LoadConfigurations(dirPath string) ([]Configuration, error) {
	cfgLogger := logger.NewLogger("LoadConfigurations")

	files, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	configChan := make(chan Configuration, len(files))
	for _, f := range files {
		// Skip dirs and non-yaml files
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
			continue
		}

		wg.Add(1)
		go func(file os.DirEntry) {
			defer wg.Done()
			filePath := filepath.Join(dirPath, file.Name())
			buf, err := os.ReadFile(filePath)
			if err != nil {
				cfgLogger.Err(err).Str("file", filePath).Msg("Could not read model configuration")
				return
			}
			cfg, err := ParseConfiguration(strings.TrimSuffix(file.Name(), ".yaml"), buf)
			if err != nil {
				cfgLogger.Err(err).Str("file", filePath).Msg("Skipping model configuration")
				return
			}
			cfg.FilePath = filePath
			configChan <- cfg
		}(f)
	}

	go func() {
		wg.Wait()
		close(configChan)
	}()

	configs := make([]Configuration, 0, len(configChan))
	for cfg := range configChan {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs, nil
}
