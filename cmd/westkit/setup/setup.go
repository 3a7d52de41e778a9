// Package setup implements `westkit setup`: runs the provisioning pipeline
// against the current platform with progress output.
package setup

import (
	"fmt"
	"net/http"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"westkit/cmd/westkit/cmdutil"
	"westkit/cmd/westkit/ui"
	"westkit/internal/archive"
	"westkit/internal/progress"
	"westkit/internal/setup"

	"github.com/spf13/cobra"
)

func Cmd(manifestPath *string) *cobra.Command {
	var toolchain string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Download and install the toolchain described by the manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cmdutil.Open(*manifestPath)
			if err != nil {
				return err
			}
			defer app.Close()

			plat, err := app.Manifest.Resolve(runtime.GOOS, runtime.GOARCH)
			if err != nil {
				return err
			}
			if toolchain == "" && len(plat.Toolchains) == 1 {
				toolchain = plat.Toolchains[0].Name
			}
			if toolchain == "" && len(plat.Toolchains) > 1 {
				return fmt.Errorf("pick a toolchain with --toolchain (available: %s)",
					strings.Join(plat.ToolchainNames(), ", "))
			}

			var printer stepPrinter
			pipeline := setup.Pipeline{
				Runner: app.Runner,
				Store:  app.Store,
				Fetcher: &setup.Fetcher{
					Client:   &http.Client{Timeout: 30 * time.Minute},
					CacheDir: app.CacheDir,
				},
				Extractor: archive.Extractor{Runner: app.Runner},
				ToolsDir:  app.ToolsDir,
				Tracker:   progress.New(printer.report),
			}

			fmt.Println(ui.InfoMsg("setting up toolchain %s for %s/%s",
				ui.Accent(toolchain), runtime.GOOS, runtime.GOARCH))

			if err := pipeline.Run(cmd.Context(), runtime.GOOS, runtime.GOARCH, toolchain, app.Manifest); err != nil {
				fmt.Println(ui.ErrorMsg("setup failed; run with --debug for the full trail"))
				return err
			}

			fmt.Println(ui.SuccessMsg("toolchain installed and recorded"))
			fmt.Print(ui.KeyValues("  ",
				ui.KV("tools dir", app.ToolsDir),
				ui.KV("env script", filepath.Join(app.ToolsDir, setup.ScriptName())),
				ui.KV("manifest version", fmt.Sprintf("%d", app.Manifest.Version)),
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&toolchain, "toolchain", "", "Toolchain variant to install (e.g. arm, riscv)")
	return cmd
}

// stepPrinter turns tracker snapshots into one line per step transition.
type stepPrinter struct {
	last map[string]progress.Status
}

func (p *stepPrinter) report(snap progress.Snapshot) {
	if p.last == nil {
		p.last = make(map[string]progress.Status, len(snap.Steps))
	}
	pct := snap.Percent()
	for _, step := range snap.Steps {
		if p.last[step.ID] == step.Status {
			continue
		}
		p.last[step.ID] = step.Status
		switch step.Status {
		case progress.Running:
			fmt.Println(ui.InfoMsg("[%3d%%] %s", pct, step.Message))
		case progress.Done:
			fmt.Println(ui.SuccessMsg("[%3d%%] %s", pct, step.ID))
		case progress.Failed:
			fmt.Println(ui.ErrorMsg("%s: %s", step.ID, step.Message))
		}
	}
}
