// Package initcmd implements `westkit init`: brings up a west workspace by
// chaining west init → west update → Python requirements through the task
// sequencer.
package initcmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"westkit/cmd/westkit/cmdutil"
	"westkit/cmd/westkit/ui"
	"westkit/internal/taskseq"
	"westkit/internal/validate"

	"github.com/spf13/cobra"
)

const defaultManifestURL = "https://github.com/zephyrproject-rtos/zephyr"

func Cmd(manifestPath *string) *cobra.Command {
	var manifestURL string

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a west workspace and fetch its projects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cmdutil.Open(*manifestPath)
			if err != nil {
				return err
			}
			defer app.Close()

			cfg, err := validate.Gate(cmd.Context(), app.Store, app.Manifest)
			if err != nil {
				return err
			}

			dirFlag := ""
			if len(args) == 1 {
				dirFlag = args[0]
			}
			dir, err := cmdutil.Workspace(dirFlag)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create workspace dir: %w", err)
			}

			fmt.Println(ui.InfoMsg("initializing workspace in %s", ui.Accent(dir)))

			seq := app.Sequencer()
			requirements := filepath.Join(dir, "zephyr", "scripts", "requirements.txt")

			// Each stage enqueues the next only after the previous one
			// succeeded; a failure anywhere drops the rest.
			seq.Push(app.Task(cfg, "west init", dir, "west", "init", "-m", manifestURL),
				taskseq.Policy{
					ErrorMessage: "west init failed; check the manifest URL and network access",
					OnComplete: func(context.Context) {
						seq.Push(app.Task(cfg, "west update", dir, "west", "update"),
							taskseq.Policy{
								OnComplete: func(context.Context) {
									seq.Push(app.Task(cfg, "python requirements", dir,
										"pip", "install", "-r", requirements),
										taskseq.Policy{
											Final:          true,
											SuccessMessage: "workspace initialized",
										})
								},
							})
					},
				})

			return seq.Wait(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&manifestURL, "manifest-url", "m", defaultManifestURL, "West manifest repository URL")
	return cmd
}
