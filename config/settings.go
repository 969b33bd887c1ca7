package config

import (
	"time"

	"github.com/tempora-app/tempora/internal/models"
)

// Settings converts the config file values into the settings singleton used
// to seed the store on first run. Afterwards the stored (and synced) record
// is authoritative.
func (c *Config) Settings(now time.Time) *models.Settings {
	return &models.Settings{
		Timezone:                  c.Timezone,
		WeekStartsOn:              c.WeekStartsOn,
		IdlePauseSeconds:          c.IdlePauseSeconds,
		PomodoroWorkMinutes:       c.Pomodoro.WorkMinutes,
		PomodoroShortBreakMinutes: c.Pomodoro.ShortBreakMinutes,
		PomodoroLongBreakMinutes:  c.Pomodoro.LongBreakMinutes,
		PomodoroLongBreakEvery:    c.Pomodoro.LongBreakEvery,
		NotificationsEnabled:      c.Notify,
		CreatedAt:                 now,
		UpdatedAt:                 now,
	}
}
