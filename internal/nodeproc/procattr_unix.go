//go:build unix

package nodeproc

import (
	"os/exec"
	"syscall"
)

// setProcGroup configures cmd to become its own session/group leader once
// started, so PGID == PID and a single signal to -PGID reaches the whole
// tree it spawns.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalGroup sends sig to every process in the group led by pgid.
func signalGroup(pgid int, sig syscall.Signal) error {
	return syscall.Kill(-pgid, sig)
}

// signalPID sends sig directly to a single process.
func signalPID(pid int, sig syscall.Signal) error {
	return syscall.Kill(pid, sig)
}

// processGroupID returns the process group id of pid.
func processGroupID(pid int) (int, error) {
	return syscall.Getpgid(pid)
}
