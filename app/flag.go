package app

import "github.com/urfave/cli/v2"

var pomodoroFlag = &cli.BoolFlag{
	Name:    "pomodoro",
	Aliases: []string{"p"},
	Usage:   "run a Pomodoro timer instead of a stopwatch",
}

var categoryFlag = &cli.StringFlag{
	Name:  "category",
	Usage: "task category",
}

var dailyTargetFlag = &cli.IntFlag{
	Name:  "daily-target",
	Usage: "target minutes per day",
}

var weeklyTargetFlag = &cli.IntFlag{
	Name:  "weekly-target",
	Usage: "target minutes per week",
}

var allFlag = &cli.BoolFlag{
	Name:  "all",
	Usage: "include archived and deleted tasks",
}

var taskFlag = &cli.StringFlag{
	Name:     "task",
	Usage:    "task id or title",
	Required: true,
}

var fromFlag = &cli.StringFlag{
	Name:     "from",
	Usage:    "session start (most date formats accepted)",
	Required: true,
}

var toFlag = &cli.StringFlag{
	Name:     "to",
	Usage:    "session end (most date formats accepted)",
	Required: true,
}

var noteFlag = &cli.StringFlag{
	Name:  "note",
	Usage: "session note",
}

var noColorFlag = &cli.BoolFlag{
	Name:  "no-color",
	Usage: "disable colour output",
}

var debugFlag = &cli.BoolFlag{
	Name:  "debug",
	Usage: "enable debug logging",
}
