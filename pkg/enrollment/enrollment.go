// Package enrollment drives the Enrollment Controller state machine: it
// walks Idle → Setup → IR_Capture → RGB_Capture → Save → Done (with
// Cancelled reachable from any capturing state), running a bounded-channel
// producer/consumer capture loop per camera and debouncing the UI guidance
// text it reports along the way.
package enrollment

import (
	"context"
	"errors"
	"time"

	"github.com/glance-auth/glance/pkg/devices"
	"github.com/glance-auth/glance/pkg/logging"
	"github.com/glance-auth/glance/pkg/recognition"
	"github.com/glance-auth/glance/pkg/storage"
)

// State is one node of the enrollment state machine.
type State int

const (
	Idle State = iota
	Setup
	IRCapture
	RGBCapture
	Save
	Done
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Setup:
		return "Setup"
	case IRCapture:
		return "IRCapture"
	case RGBCapture:
		return "RGBCapture"
	case Save:
		return "Save"
	case Done:
		return "Done"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// ErrModelsMissing signals the Setup → model-download handoff: the Face
// Engine cannot encode, so enrollment cannot proceed until models are
// installed.
var ErrModelsMissing = errors.New("enrollment: face models not available")

// ErrNoCameraAvailable is returned when neither an IR nor an RGB camera is
// present.
var ErrNoCameraAvailable = errors.New("enrollment: no capture device available")

const (
	requiredGoodFrames  = 5
	maxNoEncodeFrames   = 10
	captureInterval     = 50 * time.Millisecond // ~20fps producer rate
	boundedChannelDepth = 2
)

// FrameEngine is the capability the capture loop needs from the Face
// Engine; satisfied by *recognition.Engine.
type FrameEngine interface {
	CanEncode() bool
	Detect(width, height int, rgb []byte) (recognition.Detection, error)
}

// Controller runs one enrollment session end to end and exposes the current
// state plus debounced guidance text for a UI to poll.
type Controller struct {
	State State

	GuidanceText string
	StatusTitle  string

	pendingGuidance string
	guidanceStable  int
	statusStable    int

	cancelled bool
}

// NewController returns a controller in the Idle state.
func NewController() *Controller {
	return &Controller{State: Idle}
}

// Cancel marks the session Cancelled; any in-progress template is left
// untouched on disk. It does not stop a capture that is already running:
// the capture loop ends only when Run's context is done (or a capture
// completes), and Run then returns ErrCancelled if Cancel was called.
func (c *Controller) Cancel() {
	c.cancelled = true
	c.State = Cancelled
}

// setGuidance applies the spec's debounce rule: a changed guidance string
// is only applied to GuidanceText once it has been observed for two
// consecutive updates.
func (c *Controller) setGuidance(text string) {
	if text == c.pendingGuidance {
		c.guidanceStable++
	} else {
		c.pendingGuidance = text
		c.guidanceStable = 1
	}
	if c.guidanceStable >= 2 {
		c.GuidanceText = text
	}
}

// setStatus applies the spec's debounce rule for the status title: the
// stability counter tracks how long the currently *applied* title
// (StatusTitle) has gone unchanged. A changed title is applied only if
// that counter is already ≥2 or the display was empty; either way the
// counter resets once the incoming title differs from StatusTitle.
func (c *Controller) setStatus(title string) {
	if title == c.StatusTitle {
		c.statusStable++
		return
	}
	if c.statusStable >= 2 || c.StatusTitle == "" {
		c.StatusTitle = title
	}
	c.statusStable = 0
}

// Run executes Setup → (IR_Capture) → (RGB_Capture) → Save → Done. irInfo
// and rgbInfo are nil when that camera kind is unavailable. engineFor
// constructs a Face Engine tuned to the camera kind being captured;
// newHandle constructs the camera handle that is opened on each Info's
// device path.
func (c *Controller) Run(
	ctx context.Context,
	username string,
	existing *storage.UserTemplate,
	irInfo, rgbInfo *devices.Info,
	engineFor func(isIR bool) (FrameEngine, error),
	newHandle func() devices.FrameReader,
) (*storage.UserTemplate, error) {
	c.State = Setup

	if irInfo == nil && rgbInfo == nil {
		return nil, ErrNoCameraAvailable
	}

	tmpl := existing
	if tmpl == nil {
		tmpl = storage.NewTemplate(username)
	} else {
		tmpl.Username = username
	}

	if irInfo != nil {
		c.State = IRCapture
		c.resetCounters()
		embedding, err := c.captureOne(ctx, *irInfo, true, engineFor, newHandle)
		if err != nil {
			if c.cancelled {
				return nil, ErrCancelled
			}
			return nil, err
		}
		tmpl.AddIREncoding(embedding, "center")
	}

	if rgbInfo != nil {
		c.State = RGBCapture
		c.resetCounters()
		embedding, err := c.captureOne(ctx, *rgbInfo, false, engineFor, newHandle)
		if err != nil {
			if c.cancelled {
				return nil, ErrCancelled
			}
			return nil, err
		}
		tmpl.AddRGBEncoding(embedding, "center")
	}

	c.State = Save
	c.State = Done
	return tmpl, nil
}

// ErrCancelled is returned by Run when the session was cancelled mid-capture.
var ErrCancelled = errors.New("enrollment: cancelled")

func (c *Controller) resetCounters() {
	c.pendingGuidance, c.guidanceStable = "", 0
	c.statusStable = 0
}

type capturedFrame struct {
	width, height int
	rgb           []byte
}

// captureOne drives the bounded-channel capture loop for a single camera
// until requiredGoodFrames consecutive good detections accumulate, then
// returns that embedding.
func (c *Controller) captureOne(
	ctx context.Context,
	info devices.Info,
	isIR bool,
	engineFor func(isIR bool) (FrameEngine, error),
	newHandle func() devices.FrameReader,
) (recognition.FaceEmbedding, error) {
	engine, err := engineFor(isIR)
	if err != nil {
		return nil, err
	}

	cam := newHandle()
	defer func() { _ = cam.Close() }()
	if err := cam.Open(info.DevicePath); err != nil {
		return nil, err
	}

	frames := make(chan capturedFrame, boundedChannelDepth)
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		ticker := time.NewTicker(captureInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w, h, rgb, err := cam.Read()
				if err != nil {
					continue
				}
				select {
				case frames <- capturedFrame{w, h, rgb}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	consecutiveGood := 0
	consecutiveNoEncode := 0
	frameIdx := 0

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case f := <-frames:
			frameIdx++
			if frameIdx%2 == 0 {
				continue // halve CPU: process every other frame
			}

			det, err := engine.Detect(f.width, f.height, f.rgb)
			if err != nil {
				logging.Debugf("enrollment: detect error: %v", err)
				continue
			}

			if !det.FaceFound {
				consecutiveGood = 0
				c.setGuidance("Looking for you…")
				continue
			}

			if len(det.Embedding) == 0 {
				c.setStatus("We see you!")
				if consecutiveGood > 0 {
					consecutiveGood--
				}
				c.setGuidance("Hold still, getting a better look…")
				consecutiveNoEncode++
				if consecutiveNoEncode > maxNoEncodeFrames && !engine.CanEncode() {
					return nil, ErrModelsMissing
				}
				continue
			}

			consecutiveNoEncode = 0
			consecutiveGood++
			if consecutiveGood >= requiredGoodFrames {
				return det.Embedding, nil
			}
		}
	}
}
