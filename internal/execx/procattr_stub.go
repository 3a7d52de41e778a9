//go:build !unix

package execx

import "os/exec"

func configureProcAttrs(cmd *exec.Cmd) {
	// Default CommandContext kill behavior.
}
