// Package conf loads and validates the application settings from the yaml
// config file, environment and command line flags.
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

// MainSettings hold application wide settings.
type MainSettings struct {
	Name string // instance name, used as MQTT client id prefix
}

// BirdBuddySettings configure the cloud API client.
type BirdBuddySettings struct {
	APIURL       string        `mapstructure:"apiurl"`
	AccessToken  string        `mapstructure:"accesstoken"`
	PollInterval time.Duration `mapstructure:"pollinterval"`
	Timeout      time.Duration
	// CollectionsTTL bounds how long the collections snapshot is served
	// from cache before a refresh is required.
	CollectionsTTL time.Duration `mapstructure:"collectionsttl"`
}

// MQTTSettings configure the broker connection and Home Assistant discovery.
type MQTTSettings struct {
	Enabled     bool
	Broker      string
	Username    string
	Password    string
	TopicPrefix string `mapstructure:"topicprefix"`
	Retain      bool
	Discovery   struct {
		Enabled bool
		Prefix  string
	}
}

// HTTPSettings configure the local HTTP API.
type HTTPSettings struct {
	Enabled bool
	Listen  string
}

// DatastoreSettings configure local persistence.
type DatastoreSettings struct {
	Path string
}

// NotificationSettings configure push notifications for unlocked species.
type NotificationSettings struct {
	Enabled bool
	URLs    []string
}

// Settings is the root of the configuration tree.
type Settings struct {
	Debug bool

	Main         MainSettings
	BirdBuddy    BirdBuddySettings `mapstructure:"birdbuddy"`
	MQTT         MQTTSettings      `mapstructure:"mqtt"`
	HTTP         HTTPSettings      `mapstructure:"http"`
	Datastore    DatastoreSettings
	Notification NotificationSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a new
// Settings instance and makes it the active one.
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

// initViper initializes viper with default values and reads the
// configuration file.
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

	setDefaultConfig()

	viper.SetEnvPrefix("BIRDBUDDY")
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to the first
// default config path and loads it.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded
// config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading embedded config file: %v", err)
	}
	return string(data)
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// most specific first.
func GetDefaultConfigPaths() ([]string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error resolving user config dir: %w", err)
	}
	return []string{
		filepath.Join(configDir, "birdbuddy"),
		".",
	}, nil
}

// SaveYAMLConfig writes the settings back to the YAML configuration file.
// It overwrites the existing file, not preserving comments. The write goes
// through a temporary file so a crash cannot leave a half-written config.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// GetSettings returns the current settings instance.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, initializing it if
// necessary.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}
