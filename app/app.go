// Package app wires the command-line interface to the timer store, the
// local database, and the sync engine.
package app

import (
	"github.com/pterm/pterm"
	"github.com/urfave/cli/v2"

	"github.com/tempora-app/tempora/config"
)

// disableStyling disables all styling provided by pterm.
func disableStyling() {
	pterm.DisableColor()
	pterm.DisableStyling()
}

// Get retrieves the tempora app instance.
func Get() *cli.App {
	return &cli.App{
		Name:                 "tempora",
		Usage:                "offline-first time tracking from the command line",
		UsageText:            "tempora [COMMAND] [OPTIONS]",
		Version:              config.Version,
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			{
				Name:      "start",
				Usage:     "Start a timer for a task and attach to it",
				ArgsUsage: "<task id or title>",
				Flags:     []cli.Flag{pomodoroFlag},
				Action:    startAction,
			},
			{
				Name:   "resume",
				Usage:  "Resume a paused timer and attach to it",
				Action: resumeAction,
			},
			{
				Name:   "stop",
				Usage:  "Stop the active timer and record a session",
				Action: stopAction,
			},
			{
				Name:   "status",
				Usage:  "Print the status of the timer",
				Action: statusAction,
			},
			{
				Name:  "task",
				Usage: "Manage tasks",
				Subcommands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Create a task",
						ArgsUsage: "<title>",
						Flags: []cli.Flag{
							categoryFlag,
							dailyTargetFlag,
							weeklyTargetFlag,
						},
						Action: taskAddAction,
					},
					{
						Name:   "list",
						Usage:  "List tasks",
						Flags:  []cli.Flag{allFlag},
						Action: taskListAction,
					},
					{
						Name:      "archive",
						Usage:     "Archive a task",
						ArgsUsage: "<task id or title>",
						Action:    taskArchiveAction,
					},
					{
						Name:      "delete",
						Usage:     "Delete a task (recoverable on the remote)",
						ArgsUsage: "<task id or title>",
						Action:    taskDeleteAction,
					},
				},
			},
			{
				Name:  "session",
				Usage: "Manage recorded sessions",
				Subcommands: []*cli.Command{
					{
						Name:  "add",
						Usage: "Record a past session manually",
						Flags: []cli.Flag{
							taskFlag,
							fromFlag,
							toFlag,
							noteFlag,
						},
						Action: sessionAddAction,
					},
					{
						Name:   "list",
						Usage:  "List this week's sessions",
						Action: sessionListAction,
					},
				},
			},
			{
				Name:   "report",
				Usage:  "Show tracked time for the current week",
				Action: reportAction,
			},
			{
				Name:   "sync",
				Usage:  "Synchronize with the remote store",
				Action: syncAction,
			},
			{
				Name:   "edit-config",
				Usage:  "Edit the configuration file",
				Action: editConfigAction,
			},
		},
		Flags: []cli.Flag{
			noColorFlag,
			debugFlag,
		},
		Before: beforeAction,
	}
}
