// Package config loads Memora's settings from the built-in defaults, an
// optional YAML file and MEMORA_* environment variables, in that order.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Server          ServerConfig          `yaml:"server"`
	Camera          CameraConfig          `yaml:"camera"`
	Recognition     RecognitionConfig     `yaml:"recognition"`
	Models          ModelsConfig          `yaml:"models"`
	Database        DatabaseConfig        `yaml:"database"`
	Personalization PersonalizationConfig `yaml:"personalization"`
	Plugins         PluginsConfig         `yaml:"plugins"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type CameraConfig struct {
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
}

type RecognitionConfig struct {
	Threshold          float64       `yaml:"threshold"`
	DetectScale        float64       `yaml:"detect_scale"`
	SessionTimeout     time.Duration `yaml:"session_timeout"`
	MaxFrames          int           `yaml:"max_frames"` // 0 means bounded by SessionTimeout only
	FrameInterval      time.Duration `yaml:"frame_interval"`
	MaxCaptureFailures int           `yaml:"max_capture_failures"`
	Annotate           bool          `yaml:"annotate"`
}

type ModelsConfig struct {
	Dir           string `yaml:"dir"` // holds the dlib model files
	MaxEnrollSide int    `yaml:"max_enroll_side"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type PersonalizationConfig struct {
	Provider     string        `yaml:"provider"` // gemini, openai or static; empty picks by available key
	Model        string        `yaml:"model"`
	Timeout      time.Duration `yaml:"timeout"`
	GeminiAPIKey string        `yaml:"-"`
	OpenAIAPIKey string        `yaml:"-"`
}

type PluginsConfig struct {
	Dir     string        `yaml:"dir"` // empty disables plugins
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// embedded file, cannot fail at runtime
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load returns the defaults overlaid with the YAML file at path (if path is
// non-empty) and then with the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = envString("MEMORA_ADDR", c.Server.Addr)

	c.Camera.Device = envInt("MEMORA_CAMERA_DEVICE", c.Camera.Device)
	c.Camera.Width = envInt("MEMORA_CAMERA_WIDTH", c.Camera.Width)
	c.Camera.Height = envInt("MEMORA_CAMERA_HEIGHT", c.Camera.Height)
	c.Camera.FPS = envInt("MEMORA_CAMERA_FPS", c.Camera.FPS)

	c.Recognition.Threshold = envFloat("MEMORA_THRESHOLD", c.Recognition.Threshold)
	c.Recognition.DetectScale = envFloat("MEMORA_DETECT_SCALE", c.Recognition.DetectScale)
	c.Recognition.SessionTimeout = envDuration("MEMORA_SESSION_TIMEOUT", c.Recognition.SessionTimeout)
	c.Recognition.MaxFrames = envInt("MEMORA_MAX_FRAMES", c.Recognition.MaxFrames)
	c.Recognition.FrameInterval = envDuration("MEMORA_FRAME_INTERVAL", c.Recognition.FrameInterval)
	c.Recognition.MaxCaptureFailures = envInt("MEMORA_MAX_CAPTURE_FAILURES", c.Recognition.MaxCaptureFailures)
	c.Recognition.Annotate = envBool("MEMORA_ANNOTATE", c.Recognition.Annotate)

	c.Models.Dir = envString("MEMORA_MODELS_DIR", c.Models.Dir)
	c.Database.Path = envString("MEMORA_DB", c.Database.Path)

	c.Personalization.Provider = envString("MEMORA_PROVIDER", c.Personalization.Provider)
	c.Personalization.Model = envString("MEMORA_MODEL", c.Personalization.Model)
	c.Personalization.Timeout = envDuration("MEMORA_PROVIDER_TIMEOUT", c.Personalization.Timeout)
	c.Personalization.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	c.Personalization.OpenAIAPIKey = os.Getenv("OPENAI_TOKEN")

	c.Plugins.Dir = envString("MEMORA_PLUGINS_DIR", c.Plugins.Dir)
	c.Plugins.Timeout = envDuration("MEMORA_PLUGIN_TIMEOUT", c.Plugins.Timeout)
}

// Validate reports settings that would make recognition meaningless.
func (c *Config) Validate() error {
	switch {
	case c.Recognition.Threshold <= 0:
		return fmt.Errorf("recognition threshold must be positive, got %v", c.Recognition.Threshold)
	case c.Recognition.DetectScale <= 0 || c.Recognition.DetectScale > 1:
		return fmt.Errorf("detect scale must be in (0, 1], got %v", c.Recognition.DetectScale)
	case c.Recognition.SessionTimeout <= 0:
		return fmt.Errorf("session timeout must be positive, got %v", c.Recognition.SessionTimeout)
	case c.Recognition.MaxCaptureFailures <= 0:
		return fmt.Errorf("max capture failures must be positive, got %d", c.Recognition.MaxCaptureFailures)
	case c.Camera.FPS < 0:
		return fmt.Errorf("camera fps must not be negative, got %d", c.Camera.FPS)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envInt reads an environment variable and parses it as a non-negative integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}
