package app

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tempora-app/tempora/config"
	"github.com/tempora-app/tempora/idle"
	"github.com/tempora-app/tempora/internal/models"
	"github.com/tempora-app/tempora/internal/timeutil"
	"github.com/tempora-app/tempora/report"
	"github.com/tempora-app/tempora/store"
	"github.com/tempora-app/tempora/sync"
	"github.com/tempora-app/tempora/timer"
)

const envNoColor = "NO_COLOR"

var errTaskNotFound = errors.New("no task matches the given id or title")

func beforeAction(ctx *cli.Context) error {
	if _, exists := os.LookupEnv(envNoColor); exists {
		disableStyling()
	}

	if ctx.Bool("no-color") {
		disableStyling()
	}

	return initLogger(ctx.Bool("debug"))
}

func initLogger(debug bool) error {
	logPath, err := config.LogFilePath()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	writer := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    5, // megabytes
		MaxBackups: 2,
	}

	slog.SetDefault(
		slog.New(slog.NewTextHandler(writer, &slog.HandlerOptions{Level: level})),
	)

	return nil
}

// cliApp bundles the collaborators every command needs.
type cliApp struct {
	cfg   *config.Config
	db    *store.Client
	timer *timer.Timer
}

func setup(_ *cli.Context) (*cliApp, error) {
	configPath, err := config.ConfigFilePath()
	if err != nil {
		return nil, err
	}

	cfg, err := config.New(config.WithViperConfig(configPath))
	if err != nil {
		return nil, err
	}

	dbPath, err := config.DBFilePath()
	if err != nil {
		return nil, err
	}

	db, err := store.NewClient(dbPath)
	if err != nil {
		return nil, err
	}

	// Seed the settings singleton from the config file on first run.
	settings, err := db.GetSettings()
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	if settings == nil {
		if err := db.SaveSettings(cfg.Settings(time.Now())); err != nil {
			_ = db.Close()

			return nil, err
		}
	}

	t, err := timer.New(db, cfg)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return &cliApp{cfg: cfg, db: db, timer: t}, nil
}

func (a *cliApp) close() {
	a.timer.Shutdown()
	_ = a.db.Close()
}

// resolveTask accepts a task id or an exact title.
func (a *cliApp) resolveTask(arg string) (*models.Task, error) {
	if _, err := uuid.Parse(arg); err == nil {
		task, err := a.db.GetTask(arg)
		if err != nil {
			return nil, err
		}

		if task != nil {
			return task, nil
		}
	}

	tasks, err := a.db.ListTasks()
	if err != nil {
		return nil, err
	}

	for i := range tasks {
		t := &tasks[i]
		if t.DeletedAt == nil && strings.EqualFold(t.Title, arg) {
			return t, nil
		}
	}

	return nil, errTaskNotFound
}

func (a *cliApp) newMutation(
	op models.MutationOp,
	entityType models.EntityType,
	entityID string,
	payload any,
) (models.Mutation, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return models.Mutation{}, err
	}

	deviceID, err := a.db.DeviceID()
	if err != nil {
		return models.Mutation{}, err
	}

	id := entityID

	return models.Mutation{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		Op:         op,
		EntityType: entityType,
		EntityID:   &id,
		Payload:    encoded,
		ClientTs:   time.Now(),
		Status:     models.StatusPending,
	}, nil
}

func startAction(ctx *cli.Context) error {
	if ctx.Args().Len() == 0 {
		return errors.New("a task id or title is required")
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	task, err := a.resolveTask(ctx.Args().First())
	if err != nil {
		return err
	}

	kind := models.KindNormal
	if ctx.Bool("pomodoro") {
		kind = models.KindPomodoro
	}

	if _, err := a.timer.Start(task.ID, kind); err != nil {
		return err
	}

	pterm.Printfln("Tracking %s", pterm.Bold.Sprint(task.Title))

	return a.attach(ctx)
}

func resumeAction(ctx *cli.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	// Catch up any time elapsed while the process was gone.
	if err := a.timer.Recover(); err != nil {
		return err
	}

	state, err := a.timer.GetState()
	if err != nil {
		return err
	}

	if state == nil {
		return errors.New("no timer to resume: start a new one")
	}

	if !state.IsRunning {
		if err := a.timer.Resume(); err != nil {
			return err
		}
	}

	return a.attach(ctx)
}

// attach blocks on the running timer, rendering its state once per second.
// Any input line counts as user activity for idle detection; "p" pauses,
// "r" resumes, "q" stops. SIGINT pauses the timer so the run can be resumed
// later.
func (a *cliApp) attach(ctx *cli.Context) error {
	settings, err := a.db.GetSettings()
	if err != nil {
		return err
	}

	idleSeconds := a.cfg.IdlePauseSeconds
	if settings != nil {
		idleSeconds = settings.IdlePauseSeconds
	}

	watcher := idle.New(a.timer, idleSeconds)
	watcher.Start(ctx.Context)

	defer watcher.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	defer signal.Stop(sig)

	input := make(chan string)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- strings.TrimSpace(scanner.Text())
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-sig:
			fmt.Fprintln(os.Stdout)

			if err := a.timer.Pause(); err != nil {
				return err
			}

			pterm.Println("Timer paused; resume with `tempora resume`")

			return nil
		case line := <-input:
			watcher.Touch()

			switch line {
			case "p":
				if err := a.timer.Pause(); err != nil {
					return err
				}
			case "r":
				if err := a.timer.Resume(); err != nil {
					return err
				}
			case "q":
				fmt.Fprintln(os.Stdout)

				return a.stopAndReport()
			}
		case <-ticker.C:
			state, err := a.timer.GetState()
			if err != nil {
				return err
			}

			if state == nil {
				// A completed Pomodoro finalizes the session on its own.
				fmt.Fprintln(os.Stdout)
				pterm.Println("Session recorded")

				return nil
			}

			renderState(state)
		}
	}
}

func (a *cliApp) stopAndReport() error {
	sess, err := a.timer.Stop()
	if err != nil {
		return err
	}

	if sess == nil {
		pterm.Println("Session was too short to record")

		return nil
	}

	pterm.Printfln(
		"Recorded %s of work",
		formatElapsed(*sess.DurationSeconds),
	)

	return nil
}

func formatElapsed(secs int64) string {
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}

func renderState(state *models.RunningTimerState) {
	elapsed := state.AccumulatedSeconds

	label := "paused"
	if state.IsRunning {
		label = "running"
	}

	line := fmt.Sprintf("⏱  %s [%s]", formatElapsed(elapsed), label)

	if state.Pomodoro != nil {
		line += fmt.Sprintf(
			" %s %s left",
			state.Pomodoro.Phase,
			formatElapsed(state.Pomodoro.RemainingSeconds),
		)
	}

	fmt.Fprintf(os.Stdout, "\r\033[K%s", line)
}

func stopAction(ctx *cli.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.timer.Recover(); err != nil {
		return err
	}

	state, err := a.timer.GetState()
	if err != nil {
		return err
	}

	if state == nil {
		return errors.New("no active timer")
	}

	return a.stopAndReport()
}

func statusAction(ctx *cli.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	state, err := a.timer.GetState()
	if err != nil {
		return err
	}

	if state == nil {
		pterm.Println("No active timer")

		return nil
	}

	task, err := a.db.GetTask(state.TaskID)
	if err != nil {
		return err
	}

	title := state.TaskID
	if task != nil {
		title = task.Title
	}

	// Include time elapsed since the state was last persisted.
	elapsed := state.AccumulatedSeconds
	if state.IsRunning && state.LastTick != nil {
		elapsed += timeutil.DurationSecondsBetween(*state.LastTick, time.Now())
	}

	label := "paused"
	if state.IsRunning {
		label = "running"
	}

	pterm.Printfln("%s: %s [%s]", title, formatElapsed(elapsed), label)

	return nil
}

func taskAddAction(ctx *cli.Context) error {
	title := strings.TrimSpace(strings.Join(ctx.Args().Slice(), " "))
	if title == "" {
		return errors.New("a task title is required")
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	now := time.Now()

	task := models.Task{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if c := ctx.String("category"); c != "" {
		task.Category = &c
	}

	if m := ctx.Int("daily-target"); m > 0 {
		task.TargetDailyMinutes = &m
	}

	if m := ctx.Int("weekly-target"); m > 0 {
		task.TargetWeeklyMinutes = &m
	}

	mut, err := a.newMutation(models.OpUpsert, models.EntityTask, task.ID, &task)
	if err != nil {
		return err
	}

	if err := a.db.SaveTaskWithMutation(&task, &mut); err != nil {
		return err
	}

	pterm.Printfln("Added task %s (%s)", pterm.Bold.Sprint(task.Title), task.ID)

	return nil
}

func taskListAction(ctx *cli.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	tasks, err := a.db.ListTasks()
	if err != nil {
		return err
	}

	rows := pterm.TableData{{"ID", "Title", "Category", "Archived"}}

	for i := range tasks {
		t := &tasks[i]

		if !ctx.Bool("all") && (t.IsArchived || t.DeletedAt != nil) {
			continue
		}

		category := ""
		if t.Category != nil {
			category = *t.Category
		}

		archived := ""
		if t.IsArchived {
			archived = "yes"
		}

		rows = append(rows, []string{t.ID, t.Title, category, archived})
	}

	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func (a *cliApp) updateTask(arg string, update func(t *models.Task)) error {
	task, err := a.resolveTask(arg)
	if err != nil {
		return err
	}

	update(task)
	task.UpdatedAt = time.Now()

	mut, err := a.newMutation(models.OpUpsert, models.EntityTask, task.ID, task)
	if err != nil {
		return err
	}

	return a.db.SaveTaskWithMutation(task, &mut)
}

func taskArchiveAction(ctx *cli.Context) error {
	if ctx.Args().Len() == 0 {
		return errors.New("a task id or title is required")
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return a.updateTask(ctx.Args().First(), func(t *models.Task) {
		t.IsArchived = true
	})
}

func taskDeleteAction(ctx *cli.Context) error {
	if ctx.Args().Len() == 0 {
		return errors.New("a task id or title is required")
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	// Soft delete only; the record survives for sync.
	return a.updateTask(ctx.Args().First(), func(t *models.Task) {
		now := time.Now()
		t.DeletedAt = &now
	})
}

func sessionAddAction(ctx *cli.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	task, err := a.resolveTask(ctx.String("task"))
	if err != nil {
		return err
	}

	start, err := dateparse.ParseLocal(ctx.String("from"))
	if err != nil {
		return fmt.Errorf("parsing --from: %w", err)
	}

	end, err := dateparse.ParseLocal(ctx.String("to"))
	if err != nil {
		return fmt.Errorf("parsing --to: %w", err)
	}

	if !end.After(start) {
		return errors.New("the session end must be later than its start")
	}

	now := time.Now()
	duration := timeutil.DurationSecondsBetween(start, end)

	sess := models.Session{
		ID:              uuid.NewString(),
		TaskID:          task.ID,
		StartAt:         start,
		EndAt:           &end,
		DurationSeconds: &duration,
		Kind:            models.KindNormal,
		Source:          models.SourceManual,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if n := ctx.String("note"); n != "" {
		sess.Note = &n
	}

	mut, err := a.newMutation(models.OpUpsert, models.EntitySession, sess.ID, &sess)
	if err != nil {
		return err
	}

	if err := a.db.SaveSessionWithMutation(&sess, &mut); err != nil {
		return err
	}

	pterm.Printfln(
		"Recorded %s against %s",
		formatElapsed(duration),
		pterm.Bold.Sprint(task.Title),
	)

	return nil
}

func sessionListAction(ctx *cli.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	weekStart := timeutil.WeekStartMonday(time.Now())

	sessions, err := a.db.GetSessions(weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return err
	}

	rows := pterm.TableData{{"Start", "Duration", "Task", "Kind", "Source"}}

	for i := range sessions {
		s := &sessions[i]
		if s.DeletedAt != nil {
			continue
		}

		duration := ""
		if s.DurationSeconds != nil {
			duration = formatElapsed(*s.DurationSeconds)
		}

		title := s.TaskID
		if t, terr := a.db.GetTask(s.TaskID); terr == nil && t != nil {
			title = t.Title
		}

		rows = append(rows, []string{
			s.StartAt.Local().Format("Mon 15:04"),
			duration,
			title,
			string(s.Kind),
			string(s.Source),
		})
	}

	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func reportAction(ctx *cli.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	now := time.Now()
	weekStart := timeutil.WeekStartMonday(now)

	sessions, err := a.db.GetSessions(weekStart, weekStart.AddDate(0, 0, 7))
	if err != nil {
		return err
	}

	tasks, err := a.db.ListTasks()
	if err != nil {
		return err
	}

	byID := make(map[string]models.Task, len(tasks))
	for i := range tasks {
		byID[tasks[i].ID] = tasks[i]
	}

	rendered, err := report.RenderWeekly(report.Weekly(sessions, now), byID)
	if err != nil {
		return err
	}

	_, err = os.Stdout.Write(rendered)

	return err
}

func syncAction(ctx *cli.Context) error {
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	deviceID, err := a.db.DeviceID()
	if err != nil {
		return err
	}

	engine := sync.New(
		a.db,
		a.cfg.Sync.BaseURL,
		deviceID,
		sync.WithBatchSize(a.cfg.Sync.BatchSize),
	)

	if err := engine.SyncNow(ctx.Context); err != nil {
		var transport *sync.TransportError
		if errors.As(err, &transport) {
			slog.Warn("sync round failed", slog.Any("error", err))
			pterm.Println("Sync failed, will retry on the next round")

			return nil
		}

		return err
	}

	pterm.Println("Sync complete")

	return nil
}

func editConfigAction(ctx *cli.Context) error {
	configPath, err := config.ConfigFilePath()
	if err != nil {
		return err
	}

	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = "vi"
	}

	cmd := exec.Command(editor, configPath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return err
	}

	// Settings are a synced entity: fold the edited file back into the
	// singleton and queue the change for the next sync round.
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	current, err := a.db.GetSettings()
	if err != nil {
		return err
	}

	updated := a.cfg.Settings(time.Now())
	if current != nil {
		updated.CreatedAt = current.CreatedAt
	}

	mut, err := a.newMutation(models.OpUpsert, models.EntitySettings, "", updated)
	if err != nil {
		return err
	}

	mut.EntityID = nil

	return a.db.SaveSettingsWithMutation(updated, &mut)
}
