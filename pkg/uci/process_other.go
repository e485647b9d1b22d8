//go:build !windows

package uci

import "os/exec"

func hideWindow(cmd *exec.Cmd) {}
