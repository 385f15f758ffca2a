package bridge

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/unitbridge/unitbridge/flags"
)

// Config holds the application configuration
type Config struct {
	AssemblyPath      string
	WorkerConfig      string        // Path to the worker profile config file
	Profile           string        // Worker profile to launch
	RunSettings       string        // Test configuration file passed through to the worker
	SupportAssemblies []string      // Extra assemblies loaded next to the test assembly
	Filters           []string      // Regex patterns selecting test cases by display name
	RunInterval       time.Duration // Interval between test runs
	RunOnce           bool          // Indicates if the service should exit after one test run
	CrashLogDir       string        // Directory for per-run worker crash logs
	SummaryFile       string        // Optional plain-text summary output file
	Log               log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	assembly := ctx.String(flags.Assembly.Name)
	if assembly == "" {
		return nil, errors.New("test assembly is required")
	}
	absAssembly, err := filepath.Abs(assembly)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for assembly '%s': %w", assembly, err)
	}

	workerConfig := ctx.String(flags.WorkerConfig.Name)
	absWorkerConfig, err := filepath.Abs(workerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for worker config '%s': %w", workerConfig, err)
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)
	runOnce := runInterval == 0

	runSettings := ctx.String(flags.RunSettings.Name)
	if runSettings != "" {
		runSettings, err = filepath.Abs(runSettings)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for runsettings '%s': %w", runSettings, err)
		}
	}

	return &Config{
		AssemblyPath:      absAssembly,
		WorkerConfig:      absWorkerConfig,
		Profile:           ctx.String(flags.Profile.Name),
		RunSettings:       runSettings,
		SupportAssemblies: ctx.StringSlice(flags.SupportAssembly.Name),
		Filters:           ctx.StringSlice(flags.Filter.Name),
		RunInterval:       runInterval,
		RunOnce:           runOnce,
		CrashLogDir:       ctx.String(flags.CrashLogDir.Name),
		SummaryFile:       ctx.String(flags.SummaryFile.Name),
		Log:               log,
	}, nil
}
