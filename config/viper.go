package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// viperKeys defines the mapping between config keys and their Viper
// counterparts.
const (
	keyWorkMinutes       = "pomodoro.work_minutes"
	keyShortBreakMinutes = "pomodoro.short_break_minutes"
	keyLongBreakMinutes  = "pomodoro.long_break_minutes"
	keyLongBreakEvery    = "pomodoro.long_break_every"
	keyIdlePauseSeconds  = "idle_pause_seconds"
	keyNotify            = "notify"
	keySessionCmd        = "session_cmd"
	keyWeekStartsOn      = "week_starts_on"
	keyTimezone          = "timezone"
	keySyncBaseURL       = "sync.base_url"
	keySyncBatchSize     = "sync.batch_size"
)

// WithViperConfig returns an Option that loads configuration from the YAML
// file at configPath, writing a default config file on first run.
func WithViperConfig(configPath string) Option {
	return func(c *Config) error {
		v := viper.New()

		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		setViperDefaults(v)

		err := v.ReadInConfig()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("reading config file failed: %w", err)
			}

			if err := v.WriteConfig(); err != nil {
				return fmt.Errorf("writing default config failed: %w", err)
			}
		}

		if err := v.Unmarshal(c); err != nil {
			return fmt.Errorf("unmarshalling config failed: %w", err)
		}

		c.PathToConfig = configPath

		return nil
	}
}

func setViperDefaults(v *viper.Viper) {
	v.SetDefault(keyWorkMinutes, 25)
	v.SetDefault(keyShortBreakMinutes, 5)
	v.SetDefault(keyLongBreakMinutes, 15)
	v.SetDefault(keyLongBreakEvery, 4)
	v.SetDefault(keyIdlePauseSeconds, 300)
	v.SetDefault(keyNotify, true)
	v.SetDefault(keySessionCmd, "")
	v.SetDefault(keyWeekStartsOn, 1)
	v.SetDefault(keyTimezone, "local")
	v.SetDefault(keySyncBaseURL, "")
	v.SetDefault(keySyncBatchSize, 250)
}
