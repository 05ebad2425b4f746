package config

import "deepreport/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode,omitempty"` // Master toggle - false = no logging (production)
	Level      string          `yaml:"level" json:"level,omitempty"`           // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format" json:"json_format,omitempty"`
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"` // Per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Returns false if debug_mode is false (production mode).
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// Settings converts the config section into logger settings.
func (c LoggingConfig) Settings() logging.Settings {
	return logging.Settings{
		DebugMode:  c.DebugMode,
		Level:      c.Level,
		JSONFormat: c.JSONFormat,
		Categories: c.Categories,
	}
}
