package config

// LoggingConfig configures the category-based file logger (internal/logging)
// used throughout internal/*, separately from the zap process logger used
// by cmd/mgxd.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty"`           // debug, info, warn, error
	Dir        string          `yaml:"dir" json:"dir,omitempty"`               // category log files live here
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode,omitempty"` // master toggle
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"` // per-category toggles
}

// IsCategoryEnabled returns whether logging is enabled for a category.
// Returns false if debug_mode is false (production mode).
// Returns true if debug_mode is true and category is enabled (or not specified).
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true // All enabled by default in debug mode
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true // Enable by default if not specified
	}
	return enabled
}
