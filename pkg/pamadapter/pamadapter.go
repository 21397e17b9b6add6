// Package pamadapter parses PAM module arguments, maps an authengine
// AuthResult to a PAM return code, and points the application logger at
// syslog under the auth facility — the glue cmd/pam_glance's cgo entry
// points call into.
package pamadapter

import (
	"log/syslog"
	"strconv"
	"time"

	"github.com/glance-auth/glance/pkg/authengine"
	"github.com/glance-auth/glance/pkg/config"
	"github.com/glance-auth/glance/pkg/logging"
)

// PAM return codes, mirrored from <security/pam_appl.h> so this package
// stays testable without cgo.
const (
	PAMSuccess = 0
	PAMAuthErr = 7
	PAMIgnore  = 25
)

// Args is the parsed result of a PAM module argument line, e.g.
// "timeout=5 data_dir=/var/lib/glance prefer_ir debug".
type Args struct {
	Timeout    time.Duration
	HasTimeout bool
	DataDir    string
	Config     string
	PreferIR   *bool
	Debug      bool
}

// ParseArgs parses module arguments in `key=value` or bare-flag form.
// `prefer_ir` and `prefer_rgb` are mutually exclusive; whichever appears
// last in argv wins.
func ParseArgs(argv []string) Args {
	var args Args
	for _, raw := range argv {
		key, value, hasValue := splitArg(raw)
		switch key {
		case "timeout":
			if hasValue {
				if secs, err := strconv.ParseFloat(value, 64); err == nil {
					args.Timeout = time.Duration(secs * float64(time.Second))
					args.HasTimeout = true
				}
			}
		case "data_dir":
			if hasValue {
				args.DataDir = value
			}
		case "config":
			if hasValue {
				args.Config = value
			}
		case "prefer_ir":
			t := true
			args.PreferIR = &t
		case "prefer_rgb":
			f := false
			args.PreferIR = &f
		case "debug":
			args.Debug = true
		}
	}
	return args
}

func splitArg(raw string) (key, value string, hasValue bool) {
	for i := 0; i < len(raw); i++ {
		if raw[i] == '=' {
			return raw[:i], raw[i+1:], true
		}
	}
	return raw, "", false
}

// ResolveConfig builds an AuthConfig from the file named by args.Config
// (built-in defaults if it cannot be read) or, when args.Config is empty,
// from config.LoadDefault's user-then-system search; it then applies
// argument overrides and sets TargetUser.
func ResolveConfig(args Args, targetUser string) config.AuthConfig {
	var fc config.FileConfig
	if args.Config != "" {
		loaded, err := config.LoadFile(args.Config)
		if err != nil {
			logging.Warnf("pamadapter: could not load config %s, using defaults: %v", args.Config, err)
			fc = config.DefaultFileConfig()
		} else {
			fc = loaded
		}
	} else {
		fc = config.LoadDefault()
	}

	ac := config.FromFileConfig(fc)
	if args.HasTimeout {
		ac.Timeout = args.Timeout
	}
	if args.DataDir != "" {
		ac.DataDir = args.DataDir
		ac.SystemDataDir = args.DataDir
	}
	if args.PreferIR != nil {
		ac.PreferIR = *args.PreferIR
	}
	ac.TargetUser = targetUser
	return ac
}

// MapOutcome maps an authengine.Outcome to a PAM return code per spec §4.8:
// only Success maps to PAMSuccess, every other outcome (including Error)
// maps to PAMAuthErr so the next module in the PAM stack runs.
func MapOutcome(outcome authengine.Outcome) int {
	if outcome == authengine.Success {
		return PAMSuccess
	}
	return PAMAuthErr
}

// InitSyslog points the shared application logger at syslog under the
// auth facility, tagged with the given process name. Falls back to the
// existing output (stderr), logging a warning there, if syslog is
// unreachable, since a PAM
// module must never fail authentication over a logging transport issue.
func InitSyslog(tag string, debug bool) {
	writer, err := syslog.New(syslog.LOG_AUTH|syslog.LOG_INFO, tag)
	if err != nil {
		logging.Warnf("pamadapter: syslog unavailable, logging to stderr: %v", err)
	} else {
		logging.Logger.SetOutput(writer)
	}
	if debug {
		logging.SetLevel("debug")
	}
}
