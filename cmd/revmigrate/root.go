package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/revmigrate/internal/config"
	"github.com/ALT-F4-LLC/revmigrate/internal/ident"
	"github.com/ALT-F4-LLC/revmigrate/internal/load"
	"github.com/ALT-F4-LLC/revmigrate/internal/logging"
	"github.com/ALT-F4-LLC/revmigrate/internal/output"
	"github.com/ALT-F4-LLC/revmigrate/internal/recordio"
	"github.com/ALT-F4-LLC/revmigrate/internal/sanitize"
	"github.com/ALT-F4-LLC/revmigrate/internal/telemetry"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type contextKey string

const (
	cfgKey contextKey = "cfg"
	logKey contextKey = "log"
)

// CmdError wraps an error with a machine-readable error code for structured output.
// Data is the partial result of the failed run, if any.
type CmdError struct {
	Err  error
	Code output.ErrorCode
	Data any
}

func (e *CmdError) Error() string { return e.Err.Error() }

func (e *CmdError) Unwrap() error { return e.Err }

func cmdErr(err error, code output.ErrorCode) *CmdError {
	return &CmdError{Err: err, Code: code}
}

// classify wraps err with the error code its class maps to.
func classify(err error) *CmdError {
	var ce *CmdError
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case config.Error.Has(err), recordio.ErrMalformed.Has(err), load.Error.Has(err), sanitize.Error.Has(err):
		return cmdErr(err, output.ErrValidation)
	case ident.ErrMapping.Has(err):
		return cmdErr(err, output.ErrMapping)
	default:
		return cmdErr(err, output.ErrGeneral)
	}
}

// storeFlags are bound to configuration keys on every command.
var storeFlags = []string{
	config.KeyStoreURL, config.KeyStoreSecret, config.KeyUploadsURL, config.KeyConcurrency,
	config.KeyGhost, config.KeyNoGhost, config.KeyRequestTimeout, config.KeyExclusions, config.KeyLoadRate,
}

var rootCmd = &cobra.Command{
	Use:     "revmigrate",
	Short:   "Move code review data for a set of repositories between stores",
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		out = nil
		configFile, _ := cmd.Flags().GetString("config")
		verbose, _ := cmd.Flags().GetBool("verbose")
		logJSON, _ := cmd.Flags().GetBool("log-json")

		v := config.New()
		if err := config.BindFlags(v, cmd.Flags(), storeFlags...); err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		cfg, err := config.Resolve(v, configFile)
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		if _, ok := cmd.Annotations["skipValidate"]; !ok {
			if err := cfg.Validate(); err != nil {
				return cmdErr(err, output.ErrValidation)
			}
		}

		log, err := logging.New(logging.Options{Verbose: verbose, JSON: logJSON})
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		if err := telemetry.Init(cmd.Context(), "revmigrate", version); err != nil {
			log.Warn("tracing disabled", zap.Error(err))
		}

		ctx := context.WithValue(cmd.Context(), cfgKey, cfg)
		cmd.SetContext(context.WithValue(ctx, logKey, log))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.Shutdown(cmd.Context())
		if log, ok := cmd.Context().Value(logKey).(*zap.Logger); ok {
			_ = log.Sync()
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.Bool("json", false, "Output in JSON format")
	flags.BoolP("quiet", "q", false, "Suppress non-essential output")
	flags.BoolP("verbose", "v", false, "Log every entity read and written")
	flags.Bool("log-json", false, "Write logs as JSON")
	flags.String("config", "", "Read settings from a YAML, TOML or JSON file")

	flags.String(config.KeyStoreURL, "", "Store URL: https://<db>.firebaseio.com or sqlite:<path>")
	flags.String(config.KeyStoreSecret, "", "Store auth secret")
	flags.String(config.KeyUploadsURL, "", "Base URL of uploaded attachments")
	flags.Int(config.KeyConcurrency, 20, "Maximum concurrent store operations")
	flags.String(config.KeyGhost, ident.DefaultGhost, "Identifier substituted for unmapped users")
	flags.Bool(config.KeyNoGhost, false, "Fail on unmapped users instead of ghosting them")
	flags.Duration(config.KeyRequestTimeout, time.Minute, "Per-request store timeout")
	flags.String(config.KeyExclusions, "", "YAML file replacing the built-in field exclusion lists")

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

// out is the running command's writer. Execute reuses it so warnings held
// in JSON mode reach the error envelope.
var out *output.Writer

func getWriter(cmd *cobra.Command) *output.Writer {
	if out == nil {
		jsonMode, _ := cmd.Flags().GetBool("json")
		quietMode, _ := cmd.Flags().GetBool("quiet")
		out = output.New(jsonMode, quietMode)
	}
	return out
}

func getCfg(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(cfgKey).(*config.Config)
	return cfg
}

func getLog(cmd *cobra.Command) *zap.Logger {
	if log, ok := cmd.Context().Value(logKey).(*zap.Logger); ok {
		return log
	}
	return zap.NewNop()
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		w := out
		if w == nil {
			jsonMode, _ := rootCmd.PersistentFlags().GetBool("json")
			quietMode, _ := rootCmd.PersistentFlags().GetBool("quiet")
			w = output.New(jsonMode, quietMode)
		}

		ce := classify(err)
		return w.Error(ce.Err, ce.Code, ce.Data)
	}
	return 0
}
