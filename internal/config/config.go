package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/stratuscode/stratuscode/internal/permission"
)

// Duration is a time.Duration that unmarshals from Go duration strings
// ("2m", "90s") in config files.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port       int  `json:"port"`
	EnableCORS bool `json:"enableCors"`
}

// StoreConfig configures session persistence.
type StoreConfig struct {
	// Path is the SQLite database file; empty selects the XDG data dir.
	Path string `json:"path"`
}

// SweeperConfig configures stale-session recovery.
type SweeperConfig struct {
	Interval       Duration `json:"interval"`
	StaleThreshold Duration `json:"staleThreshold"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `json:"level"`
	Pretty bool   `json:"pretty"`
}

// Config is the merged application configuration.
type Config struct {
	Server     ServerConfig      `json:"server"`
	Store      StoreConfig       `json:"store"`
	Sweeper    SweeperConfig     `json:"sweeper"`
	Log        LogConfig         `json:"log"`
	AgentMode  string            `json:"agentMode"`
	Permission []permission.Rule `json:"permission"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, EnableCORS: true},
		Store:  StoreConfig{Path: filepath.Join(GetPaths().Data, "stratuscode.db")},
		Log:    LogConfig{Level: "info"},
	}
}

// Load builds configuration from multiple sources (priority order):
//  1. Global config (~/.config/stratuscode/)
//  2. Project config (stratuscode.json/.jsonc in the working directory)
//  3. STRATUSCODE_CONFIG file
//  4. STRATUSCODE_CONFIG_CONTENT inline JSON
//  5. Environment variables
func Load(directory string) (*Config, error) {
	config := Default()

	loaded := make(map[string]bool)
	loadOnce := func(path, baseDir string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[abs] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[abs] = true
		}
	}

	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "stratuscode.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "stratuscode.jsonc"), globalPath)

	if directory != "" {
		loadOnce(filepath.Join(directory, "stratuscode.json"), directory)
		loadOnce(filepath.Join(directory, "stratuscode.jsonc"), directory)
	}

	if configPath := os.Getenv("STRATUSCODE_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	if content := os.Getenv("STRATUSCODE_CONFIG_CONTENT"); content != "" {
		var inline Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(content)), &inline); err == nil {
			mergeConfig(config, &inline)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	envPattern := regexp.MustCompile(`\{env:([^}]+)\}`)
	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})

	filePattern := regexp.MustCompile(`\{file:([^}]+)\}`)
	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match
		}

		escaped := strings.ReplaceAll(string(content), "\\", "\\\\")
		escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
		escaped = strings.ReplaceAll(escaped, "\n", "\\n")
		escaped = strings.ReplaceAll(escaped, "\r", "\\r")
		escaped = strings.ReplaceAll(escaped, "\t", "\\t")

		return escaped
	})

	return []byte(str)
}

// mergeConfig merges source into target; later sources win.
func mergeConfig(target, source *Config) {
	if source.Server.Port != 0 {
		target.Server.Port = source.Server.Port
	}
	if source.Server.EnableCORS {
		target.Server.EnableCORS = true
	}
	if source.Store.Path != "" {
		target.Store.Path = source.Store.Path
	}
	if source.Sweeper.Interval != 0 {
		target.Sweeper.Interval = source.Sweeper.Interval
	}
	if source.Sweeper.StaleThreshold != 0 {
		target.Sweeper.StaleThreshold = source.Sweeper.StaleThreshold
	}
	if source.Log.Level != "" {
		target.Log.Level = source.Log.Level
	}
	if source.Log.Pretty {
		target.Log.Pretty = true
	}
	if source.AgentMode != "" {
		target.AgentMode = source.AgentMode
	}
	if source.Permission != nil {
		target.Permission = source.Permission
	}
}

// applyEnvOverrides applies environment variable overrides, the highest
// priority source.
func applyEnvOverrides(config *Config) {
	if port := os.Getenv("STRATUSCODE_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			config.Server.Port = n
		}
	}
	if path := os.Getenv("STRATUSCODE_STORE_PATH"); path != "" {
		config.Store.Path = path
	}
	if level := os.Getenv("STRATUSCODE_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if mode := os.Getenv("STRATUSCODE_AGENT_MODE"); mode != "" {
		config.AgentMode = mode
	}
	if permJSON := os.Getenv("STRATUSCODE_PERMISSION"); permJSON != "" {
		var rules []permission.Rule
		if err := json.Unmarshal([]byte(permJSON), &rules); err == nil {
			config.Permission = rules
		}
	}
}

// Save writes the configuration to a file.
func Save(config *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
