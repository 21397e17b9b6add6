// Package authengine implements the supervised authentication worker: a
// hard-deadline wrapper around camera enumeration, IR emitter control, and
// face matching, returning a tagged AuthResult that the PAM adapter maps to
// a PAM return code.
package authengine

import (
	"os/exec"
	"time"

	"github.com/glance-auth/glance/pkg/camera"
	"github.com/glance-auth/glance/pkg/config"
	"github.com/glance-auth/glance/pkg/devices"
	"github.com/glance-auth/glance/pkg/iremitter"
	"github.com/glance-auth/glance/pkg/logging"
	"github.com/glance-auth/glance/pkg/recognition"
	"github.com/glance-auth/glance/pkg/storage"
)

// Outcome is the AuthResult tag.
type Outcome int

const (
	NoFaceDetected Outcome = iota
	NoMatch
	Timeout
	ErrorOutcome
	Success
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "Success"
	case NoFaceDetected:
		return "NoFaceDetected"
	case NoMatch:
		return "NoMatch"
	case Timeout:
		return "Timeout"
	case ErrorOutcome:
		return "Error"
	default:
		return "Unknown"
	}
}

// AuthResult is the tagged union the spec names; only the fields relevant
// to Outcome are populated.
type AuthResult struct {
	Outcome    Outcome
	Username   string
	Confidence float64
	CameraKind devices.Kind
	Message    string
}

const maxConsecutiveFailures = 5
const cameraOpenSubTimeout = 2 * time.Second

// newCameraHandle constructs the camera used for each attempted device.
// Overridden in tests to inject a stub that blocks in Read(), exercising
// the hard-deadline law against a camera that never delivers frames.
var newCameraHandle = func() devices.FrameReader { return camera.NewHandle() }

// listCameras enumerates candidate cameras via the fast (sysfs) path.
// Overridden in tests so the deadline law can be exercised without real
// V4L2 hardware present in the sandbox.
var listCameras = devices.List

// matchEngine is the capability authenticateOnCamera needs from the Face
// Engine; satisfied by *recognition.Engine. Overridden in tests so the
// camera-read loop can run without real dlib model files on disk.
type matchEngine interface {
	Detect(width, height int, rgb []byte) (recognition.Detection, error)
	Match(probe recognition.FaceEmbedding, users map[string][]recognition.FaceEmbedding) (string, float64, bool)
	Close()
}

var newMatchEngine = func(modelsDir string, tolerance float64) (matchEngine, error) {
	return recognition.NewEngine(modelsDir, tolerance)
}

// Authenticate runs the worker under a hard supervisor deadline of
// config.Timeout + 500ms. If the worker fails to deliver within that
// window, the supervisor returns Timeout and sweeps any orphaned IR
// emitter process rather than waiting on the worker further.
func Authenticate(cfg config.AuthConfig) AuthResult {
	deadline := cfg.Timeout + 500*time.Millisecond
	resultCh := make(chan AuthResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Errorf("authengine: worker panicked: %v", r)
				resultCh <- AuthResult{Outcome: ErrorOutcome, Message: "Internal error"}
			}
		}()
		resultCh <- authenticateInner(cfg)
	}()

	select {
	case result := <-resultCh:
		return result
	case <-time.After(deadline):
		logging.Warn("authengine: hard timeout, worker may be stuck")
		sweepOrphanEmitters()
		return AuthResult{Outcome: Timeout}
	}
}

func sweepOrphanEmitters() {
	_ = exec.Command("pkill", "-f", "linux-enable-ir-emitter").Run()
}

func authenticateInner(cfg config.AuthConfig) AuthResult {
	start := time.Now()
	deadlineAt := start.Add(cfg.Timeout)
	expired := func() bool { return time.Now().After(deadlineAt) }

	logging.Infof("authengine: starting authentication (timeout=%v)", cfg.Timeout)

	if expired() {
		return AuthResult{Outcome: Timeout}
	}

	var emitter *iremitter.Controller
	if cfg.EnableIREmitter && cfg.PreferIR {
		emitter = iremitter.New(cfg.IRDevice)
		if err := emitter.Enable(); err != nil {
			logging.Warnf("authengine: IR emitter enable failed: %v", err)
			emitter = nil
		}
	}
	defer func() {
		if emitter != nil {
			_ = emitter.Disable()
		}
	}()

	if expired() {
		return AuthResult{Outcome: Timeout}
	}

	users, err := storage.LoadAllUsers(cfg.DataDir, cfg.SystemDataDir)
	if err != nil {
		logging.Errorf("authengine: failed to load registered faces: %v", err)
		return AuthResult{Outcome: ErrorOutcome, Message: "failed to load faces: " + err.Error()}
	}
	if cfg.TargetUser != "" {
		if embeddings, ok := users[cfg.TargetUser]; ok {
			users = map[string][]recognition.FaceEmbedding{cfg.TargetUser: embeddings}
		} else {
			users = nil
		}
	}
	if len(users) == 0 {
		logging.Warn("authengine: no registered faces found")
		return AuthResult{Outcome: NoMatch}
	}
	logging.Infof("authengine: loaded %d registered user(s)", len(users))

	if expired() {
		return AuthResult{Outcome: Timeout}
	}

	cameras := devices.OrderedFor(listCameras(), cfg.PreferIR)
	if len(cameras) == 0 {
		return AuthResult{Outcome: NoMatch}
	}

	frameDelay := cfg.FrameDelay

	for _, info := range cameras {
		if expired() {
			return AuthResult{Outcome: Timeout}
		}

		isIR := info.Kind == devices.IR
		engine, err := newMatchEngine(cfg.ModelsDir, cfg.ToleranceFor(isIR))
		if err != nil {
			logging.Errorf("authengine: failed to init face engine: %v", err)
			continue
		}

		result, matched := authenticateOnCamera(cfg, info, engine, users, deadlineAt, frameDelay)
		engine.Close()
		if matched {
			logging.Infof("authengine: authentication successful for %q in %v (camera=%s)",
				result.Username, time.Since(start), info.Kind)
			return result
		}
		if result.Outcome == Timeout {
			return result
		}
	}

	return AuthResult{Outcome: NoMatch}
}

func authenticateOnCamera(
	cfg config.AuthConfig,
	info devices.Info,
	engine matchEngine,
	users map[string][]recognition.FaceEmbedding,
	deadlineAt time.Time,
	frameDelay time.Duration,
) (AuthResult, bool) {
	expired := func() bool { return time.Now().After(deadlineAt) }

	cam := newCameraHandle()
	defer func() { _ = cam.Close() }()
	if !openCameraWithSubTimeout(cam, info.DevicePath, cameraOpenSubTimeout) {
		logging.Warnf("authengine: failed to open camera %s", info.DevicePath)
		return AuthResult{}, false
	}

	consecutiveFailures := 0
	framesProcessed := 0

	for framesProcessed < cfg.MaxFramesPerCam {
		if expired() {
			return AuthResult{Outcome: Timeout}, false
		}

		if framesProcessed > 0 {
			time.Sleep(frameDelay)
		}

		if expired() {
			return AuthResult{Outcome: Timeout}, false
		}

		width, height, rgb, err := cam.Read()
		if err != nil {
			consecutiveFailures++
			logging.Debugf("authengine: frame read failed (%d): %v", consecutiveFailures, err)
			if consecutiveFailures >= maxConsecutiveFailures {
				return AuthResult{}, false
			}
			time.Sleep(50 * time.Millisecond)
			continue
		}
		consecutiveFailures = 0
		framesProcessed++

		det, err := engine.Detect(width, height, rgb)
		if err != nil {
			logging.Debugf("authengine: detect error: %v", err)
			continue
		}
		if !det.FaceFound {
			continue
		}

		username, distance, ok := engine.Match(det.Embedding, users)
		if ok {
			return AuthResult{
				Outcome:    Success,
				Username:   username,
				Confidence: 1.0 - distance,
				CameraKind: info.Kind,
			}, true
		}
	}

	return AuthResult{}, false
}

// openCameraWithSubTimeout bounds the camera.Open() call: V4L2 opens can
// block indefinitely on contended hardware, so a hung open must not stall
// the whole authentication attempt past its own sub-timeout.
func openCameraWithSubTimeout(cam devices.FrameReader, devicePath string, timeout time.Duration) bool {
	done := make(chan error, 1)
	go func() {
		done <- cam.Open(devicePath)
	}()

	select {
	case err := <-done:
		return err == nil
	case <-time.After(timeout):
		return false
	}
}
