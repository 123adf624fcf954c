// config.go: settings struct for the LeafScan application and functions to load and save it.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var configFiles embed.FS

// RotationType defines different types of log rotations.
type RotationType string

const (
	RotationDaily  RotationType = "daily"
	RotationWeekly RotationType = "weekly"
	RotationSize   RotationType = "size"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool         // true to enable this log
	Path     string       // path to log file
	Rotation RotationType // rotation type
	MaxSize  int64        // max size in bytes for RotationSize
}

// ScannerSettings contains settings for the scan-session pipeline.
type ScannerSettings struct {
	Debug          bool          // true to enable debug mode
	Interval       time.Duration // minimum interval between analyzed frames
	InputSize      int           // model input edge length in pixels
	LeafModelPath  string        // path to the leaf-presence model file
	PestModelPath  string        // path to the pest-presence model file
	LeafThreshold  float64       // minimum stage-1 confidence to continue the cascade
	PestThreshold  float64       // stage-2 probability above which a frame counts as infested
	Threads        int           // number of CPU threads for inference, 0 for automatic
	UseXNNPACK     bool          // true to use XNNPACK delegate for inference acceleration
	DefaultPadding float64       // confidence used when an evidence record is missing one
}

// CaptureSettings contains settings for evidence image persistence.
type CaptureSettings struct {
	Path        string // base directory for saved evidence images
	JPEGQuality int    // JPEG encode quality, 1-100
}

// UploadSettings contains settings for the batched evidence upload.
type UploadSettings struct {
	Debug      bool          // true to enable debug mode
	BatchSize  int           // images uploaded in parallel per group
	MaxRetries int           // attempts per image before giving up
	RetryDelay time.Duration // base delay, attempt N waits N*RetryDelay before the next try
	BatchDelay time.Duration // pacing delay between groups
}

// BackendSettings contains settings for the backend API client.
type BackendSettings struct {
	Debug             bool          // true to enable debug mode
	BaseURL           string        // base URL of the backend API
	Token             string        // bearer token for authenticated endpoints
	Timeout           time.Duration // HTTP client timeout
	FieldCacheTTL     time.Duration // how long field metadata is cached
	DefaultPlantCount int           // plant count fallback when field lookup fails
}

// MetricsSettings contains settings for the Prometheus telemetry endpoint.
type MetricsSettings struct {
	Enabled bool   // true to enable Prometheus compatible telemetry endpoint
	Listen  string // IP address and port to listen on
}

// OutputSettings contains settings for local result persistence.
type OutputSettings struct {
	SQLite struct {
		Enabled bool   // true to enable sqlite output
		Path    string // path to sqlite database
	}
}

// Settings contains all configuration options for the LeafScan application.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"` // Version from build
	BuildDate string `yaml:"-"` // Build date from build

	Main struct {
		Name string    // name of this LeafScan node
		Log  LogConfig // logging configuration
	}

	Scanner ScannerSettings // scan pipeline configuration
	Capture CaptureSettings // evidence image persistence
	Upload  UploadSettings  // batched upload configuration
	Backend BackendSettings // backend API client configuration
	Metrics MetricsSettings // telemetry endpoint configuration
	Output  OutputSettings  // local persistence configuration
}

// settingsInstance is the current settings instance
var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates a default config file and writes it to the default config path
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")
	defaultConfig := getDefaultConfig()

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}
	return string(data)
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if necessary
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			_, err := Load()
			if err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// SaveSettings saves the current settings to the configuration file.
func SaveSettings() error {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()

	settingsCopy := *settingsInstance

	configPath, err := FindConfigFile()
	if err != nil {
		return fmt.Errorf("error finding config file: %w", err)
	}

	if err := SaveYAMLConfig(configPath, &settingsCopy); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	log.Printf("Settings saved successfully to %s", configPath)
	return nil
}

// SaveYAMLConfig updates the YAML configuration file with new settings.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write the YAML data to a temporary file first to keep the write atomic
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		os.Remove(tempFileName)
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempFileName)
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		os.Remove(tempFileName)
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}

// FindConfigFile locates the active configuration file on disk.
func FindConfigFile() (string, error) {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", fmt.Errorf("error getting config paths: %w", err)
	}

	for _, path := range configPaths {
		configPath := filepath.Join(path, "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}
	}

	return "", fmt.Errorf("config file not found in any of the default paths")
}

// GetDefaultConfigPaths returns a list of directories to search for the config
// file. The current working directory is preferred, followed by OS specific
// user configuration directories.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}

	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "leafscan-go"))
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "leafscan-go"))
	}

	return paths, nil
}
