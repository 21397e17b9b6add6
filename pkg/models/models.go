// Package models locates the dlib model files go-face needs and reports
// whether they are present, so callers can surface a clear error (or drive
// a download) instead of failing deep inside cgo.
package models

import (
	"fmt"
	"os"
	"path/filepath"
)

// RequiredFiles lists the exact filenames go-face's Recognizer loads from
// a models directory.
var RequiredFiles = []string{
	"shape_predictor_5_face_landmarks.dat",
	"dlib_face_recognition_resnet_model_v1.dat",
	"mmod_human_face_detector.dat",
}

// DownloadURLs maps each required filename to its upstream bzip2-compressed
// source on dlib.net.
var DownloadURLs = map[string]string{
	"shape_predictor_5_face_landmarks.dat":      "http://dlib.net/files/shape_predictor_5_face_landmarks.dat.bz2",
	"dlib_face_recognition_resnet_model_v1.dat": "http://dlib.net/files/dlib_face_recognition_resnet_model_v1.dat.bz2",
	"mmod_human_face_detector.dat":               "http://dlib.net/files/mmod_human_face_detector.dat.bz2",
}

// DefaultDir is the system-wide models directory the spec's AuthConfig
// defaults to.
const DefaultDir = "/usr/share/glance/models"

// Status reports which required files are missing from a models directory.
type Status struct {
	Dir     string
	Missing []string
}

// Complete reports whether every required model file is present.
func (s Status) Complete() bool {
	return len(s.Missing) == 0
}

// Error renders a human-readable message matching the style of the
// teacher's model-missing diagnostic, naming the directory and the exact
// files still needed.
func (s Status) Error() string {
	msg := fmt.Sprintf("face recognition models missing from %s\n\nRequired files:\n", s.Dir)
	for _, name := range s.Missing {
		msg += fmt.Sprintf("  - %s\n", name)
	}
	msg += "\nDownload from: http://dlib.net/files/"
	return msg
}

// Locate checks dir for every file in RequiredFiles and returns a Status
// describing what's missing. It never creates or downloads anything.
func Locate(dir string) Status {
	status := Status{Dir: dir}
	for _, name := range RequiredFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			status.Missing = append(status.Missing, name)
		}
	}
	return status
}

// SearchPaths returns the directories checked, in priority order, when no
// explicit models directory is configured: a per-user data directory, then
// the system-wide default.
func SearchPaths(homeDir string) []string {
	paths := []string{DefaultDir}
	if homeDir != "" {
		paths = append([]string{filepath.Join(homeDir, ".local", "share", "glance", "models")}, paths...)
	}
	return paths
}

// Find returns the first directory in SearchPaths whose Status is
// Complete, or the system default with its Status if none qualify.
func Find(homeDir string) (string, Status) {
	var last Status
	for _, dir := range SearchPaths(homeDir) {
		status := Locate(dir)
		last = status
		if status.Complete() {
			return dir, status
		}
	}
	return DefaultDir, last
}
