// Package iremitter controls linux-enable-ir-emitter as a scoped background
// process: one Controller per IR capture device, enabled right before use
// and disabled immediately after, never left running past the auth attempt
// that needed it.
package iremitter

import (
	"os"
	"os/exec"
	"time"

	"github.com/glance-auth/glance/pkg/logging"
)

var candidatePaths = []string{
	"/usr/bin/linux-enable-ir-emitter",
	"/usr/local/bin/linux-enable-ir-emitter",
	"/opt/linux-enable-ir-emitter/linux-enable-ir-emitter",
}

const warmupDelay = 150 * time.Millisecond

// findExecutable checks the fixed candidate list first, falling back to
// PATH lookup, mirroring the order the IR emitter tool's own installer
// documents for its binary location.
func findExecutable() string {
	for _, p := range candidatePaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	if path, err := exec.LookPath("linux-enable-ir-emitter"); err == nil {
		return path
	}
	return ""
}

// IsInstalled reports whether linux-enable-ir-emitter can be located.
func IsInstalled() bool {
	return findExecutable() != ""
}

// Controller owns one background linux-enable-ir-emitter process for a
// single device. The zero value is ready to use.
type Controller struct {
	device  string
	cmd     *exec.Cmd
	enabled bool
}

// New returns a controller scoped to devicePath.
func New(devicePath string) *Controller {
	return &Controller{device: devicePath}
}

// Enable starts the emitter tool in the background if it is installed. A
// missing tool is not an error: plenty of IR cameras emit without help, so
// enabling is always attempted speculatively and a miss is logged at debug
// level only.
func (c *Controller) Enable() error {
	if c.enabled {
		return nil
	}

	executable := findExecutable()
	if executable == "" {
		logging.Debugf("iremitter: linux-enable-ir-emitter not installed, skipping for %s", c.device)
		return nil
	}

	cmd := exec.Command(executable, "--device", c.device, "run")
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		logging.Warnf("iremitter: failed to start emitter for %s: %v", c.device, err)
		return nil
	}

	c.cmd = cmd
	c.enabled = true
	time.Sleep(warmupDelay)
	logging.Debugf("iremitter: enabled for %s (pid %d)", c.device, cmd.Process.Pid)
	return nil
}

// IsRunning reports whether the controller believes its emitter process is
// still alive. It does not re-check the OS process table.
func (c *Controller) IsRunning() bool {
	return c.enabled && c.cmd != nil
}

// Disable kills the tracked process (if any) and sweeps for orphaned
// instances of the tool scoped to this device, matching linux-enable-ir-emitter's
// own habit of occasionally outliving its parent on some kernels. Idempotent.
func (c *Controller) Disable() error {
	if !c.enabled {
		return nil
	}

	if c.cmd != nil && c.cmd.Process != nil {
		if err := c.cmd.Process.Kill(); err != nil {
			logging.Debugf("iremitter: could not kill emitter process for %s: %v", c.device, err)
		}
		_ = c.cmd.Wait()
	}

	sweepOrphans(c.device)

	c.cmd = nil
	c.enabled = false
	logging.Debugf("iremitter: disabled for %s", c.device)
	return nil
}

func sweepOrphans(device string) {
	pattern := "linux-enable-ir-emitter.*" + device
	_ = exec.Command("pkill", "-f", pattern).Run()
}
