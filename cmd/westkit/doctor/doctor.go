// Package doctor implements `westkit doctor`: validates the installation
// against the manifest and reports drift with actionable fixes.
package doctor

import (
	"fmt"
	"runtime"

	"westkit/cmd/westkit/cmdutil"
	"westkit/cmd/westkit/ui"
	"westkit/internal/state"
	"westkit/internal/validate"

	"github.com/spf13/cobra"
)

func Cmd(manifestPath *string) *cobra.Command {
	var quick bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verify the installed toolchain matches the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cmdutil.Open(*manifestPath)
			if err != nil {
				return err
			}
			defer app.Close()

			cfg, err := state.Load(cmd.Context(), app.Store)
			if err != nil {
				return err
			}

			v := validate.Validator{
				Runner:   app.Runner,
				Store:    app.Store,
				Manifest: app.Manifest,
				ToolsDir: app.ToolsDir,
			}

			var result validate.Result
			if quick {
				result = v.Quick(cfg)
			} else {
				result, err = v.Full(cmd.Context(), runtime.GOOS, runtime.GOARCH)
				if err != nil {
					return err
				}
			}

			fmt.Println(ui.InfoMsg("toolchain diagnostic"))
			fmt.Print(ui.KeyValues("  ",
				ui.KV("setup complete", ui.Bool(cfg.IsSetup)),
				ui.KV("setup in progress", ui.Bool(cfg.SetupInProgress)),
				ui.KV("installed manifest", fmt.Sprintf("%d", cfg.ManifestVersion)),
				ui.KV("current manifest", fmt.Sprintf("%d", app.Manifest.Version)),
				ui.KV("toolchain", orNone(cfg.Toolchain)),
			))

			for _, w := range result.Warnings {
				fmt.Println(ui.WarnMsg("%s", w))
			}
			for _, e := range result.Errors {
				fmt.Println(ui.ErrorMsg("%s", e))
			}

			if result.Valid {
				fmt.Println(ui.SuccessMsg("no issues detected"))
				return nil
			}

			fix := "westkit setup"
			if cfg.Toolchain != "" {
				fix += " --toolchain " + cfg.Toolchain
			}
			fmt.Println(ui.Muted("  fix: " + fix))
			return fmt.Errorf("toolchain validation failed (%d errors)", len(result.Errors))
		},
	}

	cmd.Flags().BoolVar(&quick, "quick", false, "Skip filesystem and executable probes")
	return cmd
}

func orNone(s string) string {
	if s == "" {
		return ui.Muted("none")
	}
	return s
}
