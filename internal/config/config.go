// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Tistory  TistoryConfig  `mapstructure:"tistory"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig controls the postgres connection.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// BrowserConfig controls the local Chrome allocator and page timeouts.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	UserAgent         string        `mapstructure:"user_agent"`
	Args              []string      `mapstructure:"args"`
	Viewport          map[string]int `mapstructure:"viewport"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	OperationTimeout  time.Duration `mapstructure:"operation_timeout"`
}

// RemoteConfig controls the hosted-browser control plane. When Enabled,
// publish and login sessions run on remote browsers instead of local Chrome.
type RemoteConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	APIKey         string        `mapstructure:"api_key"`
	ProjectID      string        `mapstructure:"project_id"`
	BaseURL        string        `mapstructure:"base_url"`
	Region         string        `mapstructure:"region"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
}

// TistoryConfig identifies the target blog and the Kakao account used
// for password login.
type TistoryConfig struct {
	BlogName      string `mapstructure:"blog_name"`
	KakaoEmail    string `mapstructure:"kakao_email"`
	KakaoPassword string `mapstructure:"kakao_password"`
}

// LLMConfig controls content generation.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int32         `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// LoggerConfig controls logging output.
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	FilePath string `mapstructure:"file_path"`
}

// SetDefaults registers the default value for every key on the given viper.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.url", "")

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.viewport", map[string]int{"width": 1920, "height": 1080})
	v.SetDefault("browser.navigation_timeout", 45*time.Second)
	v.SetDefault("browser.operation_timeout", 30*time.Second)

	v.SetDefault("remote.enabled", false)
	v.SetDefault("remote.base_url", "https://api.browserbase.com")
	v.SetDefault("remote.region", "us-west-2")
	v.SetDefault("remote.session_timeout", 10*time.Minute)

	v.SetDefault("tistory.blog_name", "")
	v.SetDefault("tistory.kakao_email", "")
	v.SetDefault("tistory.kakao_password", "")

	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.timeout", 2*time.Minute)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.file_path", "")
}

// NewConfigFromViper unmarshals and validates the configuration.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.Tistory.BlogName == "" {
		return fmt.Errorf("tistory.blog_name is required")
	}
	if strings.ContainsAny(c.Tistory.BlogName, "./ ") {
		return fmt.Errorf("tistory.blog_name must be the bare subdomain, got %q", c.Tistory.BlogName)
	}
	if c.Remote.Enabled {
		if c.Remote.APIKey == "" {
			return fmt.Errorf("remote.api_key is required when remote.enabled is true")
		}
		if c.Remote.ProjectID == "" {
			return fmt.Errorf("remote.project_id is required when remote.enabled is true")
		}
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	return nil
}

// BlogURL returns the public root of the configured blog.
func (c *TistoryConfig) BlogURL() string {
	return fmt.Sprintf("https://%s.tistory.com", c.BlogName)
}

// NewPostURL returns the editor URL for the configured blog.
func (c *TistoryConfig) NewPostURL() string {
	return c.BlogURL() + "/manage/newpost"
}
