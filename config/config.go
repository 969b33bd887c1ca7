// Package config resolves application paths and loads user preferences into
// the Settings singleton consumed by the timer store and reports.
package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const Version = "v0.3.1"

// SyncConfig points the sync engine at the remote endpoint.
type SyncConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	BatchSize int    `mapstructure:"batch_size"`
}

// PomodoroConfig holds the phase durations in minutes.
type PomodoroConfig struct {
	WorkMinutes       int `mapstructure:"work_minutes"`
	ShortBreakMinutes int `mapstructure:"short_break_minutes"`
	LongBreakMinutes  int `mapstructure:"long_break_minutes"`
	LongBreakEvery    int `mapstructure:"long_break_every"`
}

// Config holds all user-facing settings.
type Config struct {
	Pomodoro         PomodoroConfig `mapstructure:"pomodoro"`
	IdlePauseSeconds int            `mapstructure:"idle_pause_seconds"`
	Notify           bool           `mapstructure:"notify"`
	SessionCmd       string         `mapstructure:"session_cmd"`
	WeekStartsOn     int            `mapstructure:"week_starts_on"`
	Timezone         string         `mapstructure:"timezone"`
	Sync             SyncConfig     `mapstructure:"sync"`
	PathToConfig     string         `mapstructure:"-"`
}

// Option is a function that modifies Config.
type Option func(*Config) error

// New builds a Config by applying the given options in order.
func New(opts ...Option) (*Config, error) {
	c := &Config{}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

var (
	configDir      = "tempora"
	configFileName = "config.yml"
	dbFileName     = "tempora.db"
	logFileName    = "tempora.log"
)

// Dir returns the name of the application config directory.
func Dir() string {
	return configDir
}

// ConfigFilePath returns the path to the YAML config file, creating parent
// directories as needed.
func ConfigFilePath() (string, error) {
	return xdg.ConfigFile(filepath.Join(configDir, configFileName))
}

// DBFilePath returns the path to the Bolt database file.
func DBFilePath() (string, error) {
	return xdg.DataFile(filepath.Join(configDir, dbFileName))
}

// LogFilePath returns the path to the rotating log file.
func LogFilePath() (string, error) {
	return xdg.StateFile(filepath.Join(configDir, logFileName))
}
