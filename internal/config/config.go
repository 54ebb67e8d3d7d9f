// Package config provides configuration management for texguard.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/text/language"

	"texguard/internal/logger"
	"texguard/internal/types"
)

const (
	// DefaultConfigFileName is the default configuration file name
	DefaultConfigFileName = "texguard-config.json"
	// EnvOpenAIAPIKey is the environment variable name for OpenAI API key
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	// EnvOpenAIBaseURL is the environment variable name for OpenAI base URL
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	// DefaultBaseURL is the default OpenAI API base URL
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is the default OpenAI model to use
	DefaultModel = "gpt-4o"
	// DefaultSourceLanguage is the language documents are written in
	DefaultSourceLanguage = "en"
	// DefaultTargetLanguage is the language documents are translated to
	DefaultTargetLanguage = "es"
	// DefaultTimeout is the per-request timeout of the translation backend
	DefaultTimeout = 120 * time.Second
	// DefaultMaxRetries is the number of attempts per paragraph
	DefaultMaxRetries = 2
	// DefaultLogLevel is used when no level is configured
	DefaultLogLevel = "info"
)

// ConfigManager manages application configuration
type ConfigManager struct {
	configPath string
	config     *types.Config
}

// NewConfigManager creates a new ConfigManager with the specified config path.
// If configPath is empty, it uses the default path in user's home directory.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			logger.Error("failed to get user home directory", err)
			return nil, types.NewAppError(types.ErrConfig, "failed to get user home directory", err)
		}
		configPath = filepath.Join(homeDir, ".config", "texguard", DefaultConfigFileName)
	}

	logger.Debug("ConfigManager initialized", logger.String("configPath", configPath))
	return &ConfigManager{
		configPath: configPath,
		config:     defaultConfig(),
	}, nil
}

// defaultConfig returns a Config with default values
func defaultConfig() *types.Config {
	return &types.Config{
		OpenAIBaseURL:  DefaultBaseURL,
		OpenAIModel:    DefaultModel,
		SourceLanguage: DefaultSourceLanguage,
		TargetLanguage: DefaultTargetLanguage,
		Timeout:        DefaultTimeout.String(),
		MaxRetries:     DefaultMaxRetries,
		LogLevel:       DefaultLogLevel,
	}
}

// Load loads configuration from the config file.
// If the file doesn't exist, it uses default values. A file that exists but
// cannot be parsed is a configuration error.
func (m *ConfigManager) Load() error {
	logger.Debug("loading configuration", logger.String("path", m.configPath))

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("failed to read config file", err, logger.String("path", m.configPath))
			return types.NewAppErrorWithDetails(types.ErrConfig, "failed to read config file", m.configPath, err)
		}
		logger.Debug("config file not found, using defaults", logger.String("path", m.configPath))
		m.config = defaultConfig()
	} else {
		config := &types.Config{}
		if err := json.Unmarshal(data, config); err != nil {
			logger.Error("invalid config file format", err, logger.String("path", m.configPath))
			return types.NewAppErrorWithDetails(types.ErrConfig, "invalid config file format", m.configPath, err)
		}
		logger.Info("configuration loaded",
			logger.String("path", m.configPath),
			logger.Int("apiKeyLength", len(config.OpenAIAPIKey)),
			logger.String("baseURL", config.OpenAIBaseURL),
			logger.String("model", config.OpenAIModel))
		m.config = config
	}

	applyDefaults(m.config)
	return m.Validate()
}

// applyDefaults fills empty fields
func applyDefaults(c *types.Config) {
	if c.OpenAIModel == "" {
		c.OpenAIModel = DefaultModel
	}
	if c.SourceLanguage == "" {
		c.SourceLanguage = DefaultSourceLanguage
	}
	if c.TargetLanguage == "" {
		c.TargetLanguage = DefaultTargetLanguage
	}
	if c.Timeout == "" {
		c.Timeout = DefaultTimeout.String()
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate checks the fields that cannot be defaulted silently.
func (m *ConfigManager) Validate() error {
	c := m.GetConfig()
	if err := ValidateLanguage(c.SourceLanguage); err != nil {
		return err
	}
	if err := ValidateLanguage(c.TargetLanguage); err != nil {
		return err
	}
	if d, err := time.ParseDuration(c.Timeout); err != nil || d <= 0 {
		return types.NewAppErrorWithDetails(types.ErrConfig, "invalid timeout", c.Timeout, err)
	}
	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return types.NewAppErrorWithDetails(types.ErrConfig, "invalid log level", c.LogLevel, nil)
	}
	return nil
}

// ValidateLanguage checks that code is a well-formed BCP 47 tag.
func ValidateLanguage(code string) error {
	if _, err := language.Parse(code); err != nil {
		return types.NewAppErrorWithDetails(types.ErrConfig, "invalid language code", code, err)
	}
	return nil
}

// LanguageName returns the English display name of code, or code itself when
// it is not a known tag.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	base, conf := tag.Base()
	if conf == language.No {
		return code
	}
	if name, ok := languageNames[base.String()]; ok {
		return name
	}
	return code
}

var languageNames = map[string]string{
	"ar": "Arabic",
	"de": "German",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"nl": "Dutch",
	"pl": "Polish",
	"pt": "Portuguese",
	"ru": "Russian",
	"tr": "Turkish",
	"uk": "Ukrainian",
	"zh": "Chinese",
}

// Save saves the current configuration to the config file.
func (m *ConfigManager) Save() error {
	logger.Debug("saving configuration", logger.String("path", m.configPath))

	dir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create config directory", err, logger.String("dir", dir))
		return types.NewAppError(types.ErrConfig, "failed to create config directory", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		logger.Error("failed to marshal config", err)
		return types.NewAppError(types.ErrConfig, "failed to marshal config", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		logger.Error("failed to write config file", err, logger.String("path", m.configPath))
		return types.NewAppError(types.ErrConfig, "failed to write config file", err)
	}

	logger.Info("configuration saved", logger.String("path", m.configPath))
	return nil
}

// GetAPIKey returns the OpenAI API key.
// It first checks the config file value, then falls back to the environment variable.
func (m *ConfigManager) GetAPIKey() string {
	if m.config != nil && m.config.OpenAIAPIKey != "" {
		return m.config.OpenAIAPIKey
	}
	return os.Getenv(EnvOpenAIAPIKey)
}

// GetBaseURL returns the OpenAI API base URL.
// It first checks the config file value, then falls back to the environment variable.
func (m *ConfigManager) GetBaseURL() string {
	if m.config != nil && m.config.OpenAIBaseURL != "" {
		return m.config.OpenAIBaseURL
	}
	if envURL := os.Getenv(EnvOpenAIBaseURL); envURL != "" {
		return envURL
	}
	return DefaultBaseURL
}

// GetModel returns the OpenAI model to use.
func (m *ConfigManager) GetModel() string {
	if m.config != nil && m.config.OpenAIModel != "" {
		return m.config.OpenAIModel
	}
	return DefaultModel
}

// GetTimeout returns the per-request timeout.
func (m *ConfigManager) GetTimeout() time.Duration {
	return m.GetConfig().RequestTimeout(DefaultTimeout)
}

// GetMaxRetries returns the number of attempts per paragraph.
func (m *ConfigManager) GetMaxRetries() int {
	if m.config != nil && m.config.MaxRetries > 0 {
		return m.config.MaxRetries
	}
	return DefaultMaxRetries
}

// GetWorkDirectory returns the work directory.
func (m *ConfigManager) GetWorkDirectory() string {
	if m.config != nil {
		return m.config.WorkDirectory
	}
	return ""
}

// GetConfig returns the current configuration.
func (m *ConfigManager) GetConfig() *types.Config {
	if m.config == nil {
		return defaultConfig()
	}
	return m.config
}

// SetConfig sets the entire configuration.
func (m *ConfigManager) SetConfig(config *types.Config) {
	m.config = config
}

// GetConfigPath returns the path to the config file.
func (m *ConfigManager) GetConfigPath() string {
	return m.configPath
}

// Overrides carries command-line values that take precedence over the file.
// Empty fields leave the loaded value untouched.
type Overrides struct {
	SourceLanguage string
	TargetLanguage string
	RulesFile      string
	WorkDirectory  string
	LogLevel       string
	MetricsFile    string
}

// Apply merges o into the current configuration and re-validates it.
func (m *ConfigManager) Apply(o Overrides) error {
	if m.config == nil {
		m.config = defaultConfig()
	}
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&m.config.SourceLanguage, o.SourceLanguage)
	set(&m.config.TargetLanguage, o.TargetLanguage)
	set(&m.config.RulesFile, o.RulesFile)
	set(&m.config.WorkDirectory, o.WorkDirectory)
	set(&m.config.LogLevel, o.LogLevel)
	set(&m.config.MetricsFile, o.MetricsFile)
	return m.Validate()
}
