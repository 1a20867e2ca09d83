package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mcuplan/errcode"
	"mcuplan/services/validate"
	"mcuplan/types"
)

func newValidateCmd(a *app) *cobra.Command {
	var (
		file   string
		mcu    string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "validate -f <file>",
		Short: "Validate a configuration file",
		Long: `Checks a YAML or JSON peripheral configuration against its MCU.

The file names the MCU and, per peripheral type, the configured instances:

  mcu: rp2040
  peripherals:
    uart:
      UART1: { baudRate: 115200, txPin: GP4, rxPin: GP5 }
    i2c:
      I2C0: { speed: 400000, sdaPin: GP4, sclPin: GP5 }

Exits with status 1 when the configuration has errors or pin conflicts.
Use "-f -" to read standard input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfiguration(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			if mcu != "" {
				cfg.MCUID = mcu
			}
			if cfg.MCUID == "" {
				return errcode.Wrap(errcode.MissingField, "validate", "no mcu in file; use --mcu", nil)
			}

			cat, err := a.loadCatalog(a.catalogDir)
			if err != nil {
				return err
			}
			rep := validate.New(cat, a.log).Validate(cfg)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return err
				}
			} else {
				printReport(out, rep)
			}
			if !rep.Valid {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "configuration file (YAML or JSON), - for stdin")
	cmd.Flags().StringVar(&mcu, "mcu", "", "override the MCU named in the file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readConfiguration(stdin io.Reader, path string) (*types.Configuration, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}

	cfg := types.NewConfiguration("")
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		// YAML also accepts JSON documents.
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidPayload, "read configuration", path, err)
	}
	return cfg, nil
}

func printReport(w io.Writer, r types.Report) {
	status := "valid"
	if !r.Valid {
		status = "INVALID"
	}
	fmt.Fprintf(w, "%s: %s (%d errors, %d conflicts, %d warnings)\n",
		r.MCUID, status, len(r.Errors), len(r.Conflicts), len(r.Warnings))

	issues := r.Issues()
	if len(issues) == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, is := range issues {
		where := strings.TrimSpace(string(is.Peripheral) + " " + is.Instance)
		if is.Pin != "" {
			where += " @" + is.Pin
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", is.Type, where, is.Message)
	}
	tw.Flush()
}
