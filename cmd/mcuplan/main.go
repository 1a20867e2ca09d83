package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mcuplan/services/catalog"
	"mcuplan/x/logx"
)

// app carries global flags and the logger shared by every command.
type app struct {
	catalogDir string
	logLevel   string
	pretty     bool
	log        zerolog.Logger
	logOut     io.Writer
}

// exitError ends the process with code without printing anything further.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func newRootCmd() *cobra.Command {
	a := &app{logOut: os.Stderr}

	root := &cobra.Command{
		Use:   "mcuplan",
		Short: "Pin planning and peripheral validation for microcontrollers",
		Long: `mcuplan keeps a catalog of microcontroller specifications and checks
peripheral configurations against them: field rules, pin mappings and
pins claimed by more than one peripheral.

Run "mcuplan serve" for the HTTP API, or "mcuplan validate -f board.yaml"
to check a configuration file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := a.logLevel
			if level == "" {
				level = os.Getenv("MCUPLAN_LOG_LEVEL")
			}
			if level == "" {
				level = "warn"
			}
			a.log = logx.New(logx.Config{Level: level, Pretty: a.pretty, Out: a.logOut})
		},
	}

	root.PersistentFlags().StringVar(&a.catalogDir, "catalog-dir", "", "directory of extra MCU specs (YAML or JSON)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().BoolVar(&a.pretty, "pretty", false, "human-readable log output")

	root.AddCommand(newServeCmd(a), newValidateCmd(a), newCatalogCmd(a), newPinsCmd(a))
	return root
}

// loadCatalog returns the built-in catalog plus anything in dir.
func (a *app) loadCatalog(dir string) (*catalog.Catalog, error) {
	cat := catalog.NewBuiltin()
	if dir == "" {
		return cat, nil
	}
	mcus, err := catalog.LoadDir(dir)
	if err != nil && len(mcus) == 0 {
		return nil, err
	}
	if err != nil {
		a.log.Warn().Err(err).Str("dir", dir).Msg("Some catalog files were skipped")
	}
	added, replaced := cat.Merge(mcus...)
	a.log.Info().Int("added", added).Int("replaced", replaced).Str("dir", dir).Msg("Catalog directory loaded")
	return cat, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
