package pamadapter

import (
	"testing"
	"time"

	"github.com/glance-auth/glance/pkg/authengine"
)

func TestParseArgsTimeoutAndDataDir(t *testing.T) {
	args := ParseArgs([]string{"timeout=7.5", "data_dir=/var/lib/glance", "debug"})
	if !args.HasTimeout || args.Timeout != 7500*time.Millisecond {
		t.Fatalf("expected 7.5s timeout, got %v (has=%v)", args.Timeout, args.HasTimeout)
	}
	if args.DataDir != "/var/lib/glance" {
		t.Fatalf("expected data_dir parsed, got %q", args.DataDir)
	}
	if !args.Debug {
		t.Fatal("expected debug flag set")
	}
}

func TestParseArgsPreferIRRGBLastWins(t *testing.T) {
	args := ParseArgs([]string{"prefer_ir", "prefer_rgb"})
	if args.PreferIR == nil || *args.PreferIR {
		t.Fatalf("expected prefer_rgb (last) to win, got %v", args.PreferIR)
	}

	args = ParseArgs([]string{"prefer_rgb", "prefer_ir"})
	if args.PreferIR == nil || !*args.PreferIR {
		t.Fatalf("expected prefer_ir (last) to win, got %v", args.PreferIR)
	}
}

func TestParseArgsBareFlagsDoNotCrashOnUnknownKeys(t *testing.T) {
	args := ParseArgs([]string{"unknown_flag", "weird==value"})
	if args.HasTimeout || args.DataDir != "" {
		t.Fatalf("expected unknown args to be ignored, got %+v", args)
	}
}

func TestMapOutcomeExhaustive(t *testing.T) {
	cases := map[authengine.Outcome]int{
		authengine.Success:        PAMSuccess,
		authengine.NoFaceDetected: PAMAuthErr,
		authengine.NoMatch:        PAMAuthErr,
		authengine.Timeout:        PAMAuthErr,
		authengine.ErrorOutcome:   PAMAuthErr,
	}
	for outcome, want := range cases {
		if got := MapOutcome(outcome); got != want {
			t.Errorf("MapOutcome(%v) = %d, want %d", outcome, got, want)
		}
	}
}

func TestResolveConfigAppliesOverrides(t *testing.T) {
	args := ParseArgs([]string{"timeout=2", "data_dir=" + t.TempDir()})
	ac := ResolveConfig(args, "alice")
	if ac.Timeout != 2*time.Second {
		t.Fatalf("expected 2s timeout override, got %v", ac.Timeout)
	}
	if ac.TargetUser != "alice" {
		t.Fatalf("expected target user alice, got %q", ac.TargetUser)
	}
}
