package iremitter

import "testing"

func TestFindExecutableEmptyWhenNotPresent(t *testing.T) {
	// On a bare CI/test machine the tool is never installed and is not on
	// PATH, so the fixed candidate list and PATH lookup both miss.
	if path := findExecutable(); path != "" {
		t.Skipf("linux-enable-ir-emitter unexpectedly present at %q; skipping", path)
	}
}

func TestEnableWithoutExecutableIsNoop(t *testing.T) {
	if IsInstalled() {
		t.Skip("linux-enable-ir-emitter present on this machine; behavior differs")
	}

	c := New("/dev/video2")
	if err := c.Enable(); err != nil {
		t.Fatalf("Enable should never error when the tool is missing, got %v", err)
	}
	if c.IsRunning() {
		t.Fatal("controller should not report running when no process was started")
	}
}

func TestDisableIsIdempotent(t *testing.T) {
	c := New("/dev/video2")
	if err := c.Disable(); err != nil {
		t.Fatalf("disabling an unenabled controller should be a no-op, got %v", err)
	}
	if err := c.Disable(); err != nil {
		t.Fatalf("second disable should also be a no-op, got %v", err)
	}
}
