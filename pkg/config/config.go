// Package config loads the on-disk JSON configuration file that both the
// PAM authenticator and the enrollment CLI read, plus the AuthConfig it
// resolves into for a single authentication attempt.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// FileConfig is the on-disk JSON shape, read from the user config path then
// the system config path.
type FileConfig struct {
	Camera      CameraSection      `json:"camera"`
	Recognition RecognitionSection `json:"recognition"`
	IREmitter   IREmitterSection   `json:"ir_emitter"`
	Version     int                `json:"version"`
}

// CameraSection mirrors the spec's camera config block.
type CameraSection struct {
	PreferIR      bool    `json:"prefer_ir"`
	IRDevice      string  `json:"ir_device"`
	RGBDevice     string  `json:"rgb_device"`
	MinBrightness float64 `json:"min_brightness"`
	FrameWidth    int     `json:"frame_width"`
	FrameHeight   int     `json:"frame_height"`
}

// RecognitionSection mirrors the spec's recognition config block.
type RecognitionSection struct {
	IRTolerance   float64 `json:"ir_tolerance"`
	RGBTolerance  float64 `json:"rgb_tolerance"`
	AuthTimeout   float64 `json:"auth_timeout"`
	MaxAuthFrames int     `json:"max_auth_frames"`
}

// IREmitterSection mirrors the spec's ir_emitter config block.
type IREmitterSection struct {
	Enabled    bool   `json:"enabled"`
	BinaryPath string `json:"binary_path"`
	ConfigPath string `json:"config_path"`
	Device     string `json:"device"`
}

// DefaultFileConfig returns the config used when no file is found on disk.
func DefaultFileConfig() FileConfig {
	return FileConfig{
		Camera: CameraSection{
			PreferIR:      true,
			IRDevice:      "/dev/video2",
			RGBDevice:     "/dev/video0",
			MinBrightness: 70.0,
			FrameWidth:    640,
			FrameHeight:   480,
		},
		Recognition: RecognitionSection{
			IRTolerance:   0.45,
			RGBTolerance:  0.50,
			AuthTimeout:   5.0,
			MaxAuthFrames: 30,
		},
		IREmitter: IREmitterSection{
			Enabled: true,
			Device:  "/dev/video2",
		},
		Version: 1,
	}
}

// LoadFile reads and parses a config file at path on top of
// DefaultFileConfig: keys absent from the file keep their default values,
// while keys present in the file (including false or 0) override them.
func LoadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}

	cfg := DefaultFileConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, err
	}
	return cfg, nil
}

// LoadDefault searches the user config path ($HOME/.config/glance/config.json)
// then the system config path (/etc/glance/config.json), falling back to
// DefaultFileConfig if neither is present or parseable.
func LoadDefault() FileConfig {
	if home := os.Getenv("HOME"); home != "" {
		userPath := filepath.Join(home, ".config", "glance", "config.json")
		if cfg, err := LoadFile(userPath); err == nil {
			return cfg
		}
	}

	if cfg, err := LoadFile("/etc/glance/config.json"); err == nil {
		return cfg
	}

	return DefaultFileConfig()
}

// AuthConfig is the resolved set of parameters a single authenticate() call
// needs, built from a FileConfig plus PAM module arguments.
type AuthConfig struct {
	Timeout          time.Duration
	PreferIR         bool
	DataDir          string
	SystemDataDir    string
	ModelsDir        string
	IRTolerance      float64
	RGBTolerance     float64
	TargetUser       string
	EnableIREmitter  bool
	IRDevice         string
	RGBDevice        string
	MaxFramesPerCam  int
	FrameDelay       time.Duration
}

// DefaultAuthConfig returns the spec's documented defaults.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Timeout:         5 * time.Second,
		PreferIR:        true,
		DataDir:         "/var/lib/glance",
		SystemDataDir:   "/var/lib/glance",
		ModelsDir:       "/usr/share/glance/models",
		IRTolerance:     0.45,
		RGBTolerance:    0.50,
		EnableIREmitter: true,
		IRDevice:        "/dev/video2",
		RGBDevice:       "/dev/video0",
		MaxFramesPerCam: 15,
		FrameDelay:      33 * time.Millisecond,
	}
}

// FromFileConfig resolves an AuthConfig from a parsed FileConfig, leaving
// DataDir/ModelsDir/TargetUser at their defaults — those come from PAM
// arguments, not the config file.
func FromFileConfig(fc FileConfig) AuthConfig {
	ac := DefaultAuthConfig()
	ac.PreferIR = fc.Camera.PreferIR
	ac.IRDevice = fc.Camera.IRDevice
	ac.RGBDevice = fc.Camera.RGBDevice
	ac.IRTolerance = fc.Recognition.IRTolerance
	ac.RGBTolerance = fc.Recognition.RGBTolerance
	ac.Timeout = time.Duration(fc.Recognition.AuthTimeout * float64(time.Second))
	ac.MaxFramesPerCam = fc.Recognition.MaxAuthFrames
	ac.EnableIREmitter = fc.IREmitter.Enabled
	return ac
}

// ToleranceFor returns the tolerance appropriate for an IR or RGB camera.
func (a AuthConfig) ToleranceFor(isIR bool) float64 {
	if isIR {
		return a.IRTolerance
	}
	return a.RGBTolerance
}
