// Package build implements `westkit build`: a quick-validated west build
// with the board selection persisted per workspace.
package build

import (
	"fmt"

	"westkit/cmd/westkit/cmdutil"
	"westkit/cmd/westkit/ui"
	"westkit/internal/taskseq"
	"westkit/internal/validate"

	"github.com/spf13/cobra"
)

const boardKey = "board"

func Cmd(manifestPath *string) *cobra.Command {
	var (
		board    string
		pristine bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the application for the selected board",
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

			if board == "" {
				board = cmdutil.WorkspaceValue(cmd.Context(), app.Store, dir, boardKey, "")
			}
			if board == "" {
				return fmt.Errorf("no board selected; pass --board once to set it for this workspace")
			}
			if err := cmdutil.SetWorkspaceValue(cmd.Context(), app.Store, dir, boardKey, board); err != nil {
				return err
			}

			buildArgs := []string{"build", "-b", board}
			if pristine {
				buildArgs = append(buildArgs, "-p", "always")
			}

			fmt.Println(ui.InfoMsg("building for %s", ui.Accent(board)))

			seq := app.Sequencer()
			seq.Push(app.Task(cfg, "west build", dir, "west", buildArgs...),
				taskseq.Policy{
					Final:          true,
					SuccessMessage: "build complete",
					ErrorMessage:   "build failed; see output above",
				})
			return seq.Wait(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&board, "board", "b", "", "Target board (persisted per workspace)")
	cmd.Flags().BoolVar(&pristine, "pristine", false, "Force a pristine build")
	return cmd
}
