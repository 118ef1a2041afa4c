//go:build !unix

package minicron

import "os/exec"

// killGroupOnCancel keeps the default exec.CommandContext behaviour of
// killing only the direct child.
func killGroupOnCancel(cmd *exec.Cmd) {}
