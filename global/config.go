package global

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/nathanieltooley/pocketbot/errorutils"
)

type GlobalConfig struct {
	// Preferred device, empty picks the first online one
	DeviceSerial string
	AdbPath      string
	// Cue templates, card templates and digit glyphs live under here
	AssetsDir        string
	DeckCachePath    string
	CatalogCachePath string
	ArtCacheDir      string
	// Card images shown to the operator are saved here
	CapturesDir string
	// Optional layout profile, compiled in defaults are used when empty
	LayoutPath string
	// Prefer the event match over a random match
	RunEvent             bool
	PromptTimeoutSeconds int
	Debug                bool
}

const (
	ENV_SERIAL = "POCKETBOT_SERIAL"
	ENV_ADB    = "POCKETBOT_ADB"
	ENV_ASSETS = "POCKETBOT_ASSETS"
	ENV_LAYOUT = "POCKETBOT_LAYOUT"
	ENV_DEBUG  = "POCKETBOT_DEBUG"
)

func DefaultConfigDir() string {
	configDir, _ := os.UserConfigDir()
	return filepath.Join(configDir, "pocketbot")
}

func DefaultConfigLocation() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func (c GlobalConfig) PromptTimeout() time.Duration {
	return time.Duration(c.PromptTimeoutSeconds) * time.Second
}

// LoadConfig reads the config at path. A missing or empty file is created with
// the default values.
func LoadConfig(path string) (GlobalConfig, error) {
	contents, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return GlobalConfig{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	if len(contents) == 0 {
		config := populateConfig(GlobalConfig{})
		if err := SaveConfig(path, config); err != nil {
			return config, err
		}
		return config, nil
	}

	config := GlobalConfig{}
	if err := json.Unmarshal(contents, &config); err != nil {
		return populateConfig(GlobalConfig{}), fmt.Errorf("parsing config %s: %w", path, err)
	}

	return populateConfig(config), nil
}

func SaveConfig(path string, config GlobalConfig) error {
	// plain fields only, marshalling cannot fail
	jsonString := errorutils.Must(json.MarshalIndent(config, "", "  "))

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	if err := os.WriteFile(path, jsonString, 0666); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}

	return nil
}

// LoadEnv loads a .env file into the process environment. A missing file is
// not an error.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides lets the environment win over the config file
func applyEnvOverrides(config *GlobalConfig) {
	if serial := os.Getenv(ENV_SERIAL); serial != "" {
		config.DeviceSerial = serial
	}
	if adb := os.Getenv(ENV_ADB); adb != "" {
		config.AdbPath = adb
	}
	if assets := os.Getenv(ENV_ASSETS); assets != "" {
		config.AssetsDir = assets
	}
	if layout := os.Getenv(ENV_LAYOUT); layout != "" {
		config.LayoutPath = layout
	}
	if debug := os.Getenv(ENV_DEBUG); debug != "" {
		if enabled, err := strconv.ParseBool(strings.TrimSpace(debug)); err == nil {
			config.Debug = enabled
		}
	}
}

func populateConfig(config GlobalConfig) GlobalConfig {
	if config.AdbPath == "" {
		config.AdbPath = "adb"
	}
	if config.AssetsDir == "" {
		config.AssetsDir = "images"
	}
	if config.DeckCachePath == "" {
		config.DeckCachePath = "deck.json"
	}
	if config.CatalogCachePath == "" {
		config.CatalogCachePath = "card_data_cache.json"
	}
	if config.ArtCacheDir == "" {
		config.ArtCacheDir = "card_images_api_cache"
	}
	if config.CapturesDir == "" {
		config.CapturesDir = filepath.Join(DefaultConfigDir(), "captures")
	}
	if config.PromptTimeoutSeconds <= 0 {
		config.PromptTimeoutSeconds = 12
	}

	return config
}
