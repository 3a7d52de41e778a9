// Package monitor implements `westkit monitor`: opens a serial console to
// the board through the venv's pyserial miniterm.
package monitor

import (
	"fmt"

	"westkit/cmd/westkit/cmdutil"
	"westkit/cmd/westkit/ui"
	"westkit/internal/taskseq"
	"westkit/internal/validate"

	"github.com/spf13/cobra"
)

const baudKey = "monitor-baud"

func Cmd(manifestPath *string) *cobra.Command {
	var (
		port string
		baud string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Open a serial monitor on the board's console port",
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

			if port == "" {
				return fmt.Errorf("no serial port given; pass --port (e.g. /dev/ttyACM0)")
			}
			if baud == "" {
				baud = cmdutil.WorkspaceValue(cmd.Context(), app.Store, dir, baudKey, "115200")
			}
			if err := cmdutil.SetWorkspaceValue(cmd.Context(), app.Store, dir, baudKey, baud); err != nil {
				return err
			}

			fmt.Println(ui.InfoMsg("monitoring %s at %s baud (ctrl-] to exit)", ui.Accent(port), baud))

			seq := app.Sequencer()
			seq.Push(app.Task(cfg, "serial monitor", dir,
				"python", "-m", "serial.tools.miniterm", port, baud),
				taskseq.Policy{
					// miniterm exits non-zero when the device disappears
					// mid-session; that is not a failure worth popping.
					IgnoreError: true,
				})
			return seq.Wait(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Serial port device")
	cmd.Flags().StringVar(&baud, "baud", "", "Baud rate (persisted per workspace)")
	return cmd
}
