// Package update implements `westkit update`: refreshes workspace projects
// and re-installs Python requirements afterwards.
package update

import (
	"context"
	"path/filepath"

	"westkit/cmd/westkit/cmdutil"
	"westkit/internal/taskseq"
	"westkit/internal/validate"

	"github.com/spf13/cobra"
)

func Cmd(manifestPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update west projects and Python requirements",
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
			dir, err := cmdutil.Workspace("")
			if err != nil {
				return err
			}

			seq := app.Sequencer()
			requirements := filepath.Join(dir, "zephyr", "scripts", "requirements.txt")

			seq.Push(app.Task(cfg, "west update", dir, "west", "update"),
				taskseq.Policy{
					OnComplete: func(context.Context) {
						seq.Push(app.Task(cfg, "python requirements", dir,
							"pip", "install", "-r", requirements),
							taskseq.Policy{
								Final:          true,
								SuccessMessage: "workspace up to date",
							})
					},
				})

			return seq.Wait(cmd.Context())
		},
	}
	return cmd
}
