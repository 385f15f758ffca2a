package flags

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "UNITBRIDGE"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Assembly = &cli.StringFlag{
		Name:     "assembly",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("ASSEMBLY"),
		Usage:    "Path to the test assembly to run (eg. 'Tests.dll')",
	}
	WorkerConfig = &cli.StringFlag{
		Name:     "workers",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("WORKERS"),
		Usage:    "Path to worker profile config file (eg. 'workers.yaml')",
	}
	Profile = &cli.StringFlag{
		Name:     "profile",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("PROFILE"),
		Usage:    "Worker profile to launch (eg. 'dotnet-8')",
	}
	RunSettings = &cli.StringFlag{
		Name:    "runsettings",
		Value:   "",
		EnvVars: prefixEnvVars("RUNSETTINGS"),
		Usage:   "Path to a test configuration file passed through to the worker",
	}
	SupportAssembly = &cli.StringSliceFlag{
		Name:    "support-assembly",
		EnvVars: prefixEnvVars("SUPPORT_ASSEMBLY"),
		Usage:   "Additional assembly the worker loads next to the test assembly (repeatable)",
	}
	Filter = &cli.StringSliceFlag{
		Name:    "filter",
		EnvVars: prefixEnvVars("FILTER"),
		Usage:   "Regular expression selecting test cases by display name (repeatable)",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: prefixEnvVars("RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	CrashLogDir = &cli.StringFlag{
		Name:    "crash-log-dir",
		Value:   "",
		EnvVars: prefixEnvVars("CRASH_LOG_DIR"),
		Usage:   "Directory for per-run worker crash logs. Defaults to the system temp directory.",
	}
	SummaryFile = &cli.StringFlag{
		Name:    "summary-file",
		Value:   "",
		EnvVars: prefixEnvVars("SUMMARY_FILE"),
		Usage:   "If set, a plain-text run summary is written to this file after every run",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log-level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Lowest log level that will be output (trace, debug, info, warn, error)",
	}
)

var requiredFlags = []cli.Flag{
	Assembly,
	WorkerConfig,
	Profile,
}

var optionalFlags = []cli.Flag{
	RunSettings,
	SupportAssembly,
	Filter,
	RunInterval,
	CrashLogDir,
	SummaryFile,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
