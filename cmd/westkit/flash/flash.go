// Package flash implements `westkit flash`: programs the connected board
// with the most recent build.
package flash

import (
	"westkit/cmd/westkit/cmdutil"
	"westkit/internal/taskseq"
	"westkit/internal/validate"

	"github.com/spf13/cobra"
)

func Cmd(manifestPath *string) *cobra.Command {
	var runner string

	cmd := &cobra.Command{
		Use:   "flash",
		Short: "Flash the current build onto the connected board",
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

			flashArgs := []string{"flash"}
			if runner != "" {
				flashArgs = append(flashArgs, "-r", runner)
			}

			seq := app.Sequencer()
			seq.Push(app.Task(cfg, "west flash", dir, "west", flashArgs...),
				taskseq.Policy{
					Final:          true,
					SuccessMessage: "flash complete",
					ErrorMessage:   "flash failed; is the board connected?",
				})
			return seq.Wait(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&runner, "runner", "r", "", "West flash runner (e.g. jlink, openocd)")
	return cmd
}
