// Package terminalhelper is the enrollment-side collaborator that writes a
// throwaway shell script and launches it inside a visible terminal
// emulator — used to hand the user off to the IR emitter provisioning
// tool, which needs an interactive terminal of its own. It has no pack
// precedent; the candidate terminal list and script lifecycle below are
// self-authored against spec §6's one-line description.
package terminalhelper

import (
	"fmt"
	"os"
	"os/exec"
)

// candidateTerminals is tried in order; the first one found on PATH wins.
var candidateTerminals = []struct {
	name string
	args []string // appended before the script path
}{
	{"x-terminal-emulator", []string{"-e"}},
	{"gnome-terminal", []string{"--"}},
	{"konsole", []string{"-e"}},
	{"xfce4-terminal", []string{"-e"}},
	{"xterm", []string{"-e"}},
}

// ErrNoTerminalFound is returned when none of the candidate terminal
// emulators are present on PATH.
var ErrNoTerminalFound = fmt.Errorf("terminalhelper: no terminal emulator found on PATH")

// findTerminal returns the first available terminal's full path (as
// resolved on PATH) and its exec-flag prefix.
func findTerminal() (string, []string, error) {
	for _, candidate := range candidateTerminals {
		if path, err := exec.LookPath(candidate.name); err == nil {
			return path, candidate.args, nil
		}
	}
	return "", nil, ErrNoTerminalFound
}

// Launch writes script to a private temp file, makes it executable, and
// launches it inside a visible terminal emulator as a detached process.
// It returns the path written so the caller can report it, and does not
// wait for the terminal (or the script) to exit.
func Launch(script string) (scriptPath string, err error) {
	f, err := os.CreateTemp("", "glance-ir-setup-*.sh")
	if err != nil {
		return "", fmt.Errorf("terminalhelper: create temp script: %w", err)
	}
	scriptPath = f.Name()

	if _, err := f.WriteString(script); err != nil {
		_ = f.Close()
		_ = os.Remove(scriptPath)
		return "", fmt.Errorf("terminalhelper: write temp script: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(scriptPath)
		return "", fmt.Errorf("terminalhelper: close temp script: %w", err)
	}
	if err := os.Chmod(scriptPath, 0700); err != nil {
		_ = os.Remove(scriptPath)
		return "", fmt.Errorf("terminalhelper: chmod temp script: %w", err)
	}

	terminal, prefixArgs, err := findTerminal()
	if err != nil {
		_ = os.Remove(scriptPath)
		return "", err
	}

	cmdArgs := append(append([]string{}, prefixArgs...), scriptPath)
	cmd := exec.Command(terminal, cmdArgs...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	if err := cmd.Start(); err != nil {
		_ = os.Remove(scriptPath)
		return "", fmt.Errorf("terminalhelper: launch terminal: %w", err)
	}

	// Detach: the terminal and script outlive this call. Best-effort
	// reaping happens via a background goroutine so the child doesn't
	// become a zombie once it exits.
	go func() { _ = cmd.Wait() }()

	return scriptPath, nil
}
