// Package recognition is the Face Engine: it loads the dlib landmark and
// embedding models via go-face, detects the highest-confidence face in a
// frame, and compares 128-float embeddings against enrolled templates by
// Euclidean distance.
package recognition

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/Kagami/go-face"
	"github.com/glance-auth/glance/pkg/logging"
)

// EmbeddingSize is the fixed dimensionality of every FaceEmbedding.
const EmbeddingSize = 128

// FaceEmbedding is a 128-float64 vector. Every persisted or compared
// embedding has exactly this length.
type FaceEmbedding []float64

// Rectangle is a detected face's bounding box in frame pixel coordinates.
type Rectangle struct {
	X, Y          int
	Width, Height int
}

// Detection is the result of running the Face Engine over one frame.
type Detection struct {
	FaceFound  bool
	Rect       Rectangle
	Embedding  FaceEmbedding
	Confidence float64
}

// ErrInvalidFrame is returned when the RGB buffer doesn't match width*height*3.
var ErrInvalidFrame = errors.New("recognition: frame buffer does not match width*height*3")

// faceEngine is the slice of *face.Recognizer that Engine depends on.
// Exists so tests can substitute a mock instead of loading real dlib models.
type faceEngine interface {
	Recognize(data []byte) ([]face.Face, error)
	Close()
}

// newFaceEngine constructs the real go-face recognizer. Tests override this
// var to inject a mock.
var newFaceEngine = func(modelsDir string) (faceEngine, error) {
	return face.NewRecognizer(modelsDir)
}

// Engine wraps a loaded go-face recognizer with a match tolerance. The Auth
// Engine constructs one Engine per camera kind so IR and RGB frames are
// judged against their own tolerance.
type Engine struct {
	rec       faceEngine
	tolerance float64
	loaded    bool
}

// NewEngine loads the dlib models from modelsDir via go-face:
//   - shape_predictor_5_face_landmarks.dat
//   - dlib_face_recognition_resnet_model_v1.dat
//   - mmod_human_face_detector.dat
//
// A missing or unreadable model returns the load error together with an
// Engine whose CanEncode() is false; callers decide whether that's fatal.
func NewEngine(modelsDir string, tolerance float64) (*Engine, error) {
	rec, err := newFaceEngine(modelsDir)
	if err != nil {
		logging.Warnf("recognition: could not load models from %s: %v", modelsDir, err)
		return &Engine{tolerance: tolerance, loaded: false}, err
	}
	return &Engine{rec: rec, tolerance: tolerance, loaded: true}, nil
}

// CanEncode reports whether the models loaded successfully.
func (e *Engine) CanEncode() bool {
	return e.loaded && e.rec != nil
}

// Close releases the underlying dlib recognizer.
func (e *Engine) Close() {
	if e.rec != nil {
		e.rec.Close()
		e.rec = nil
	}
	e.loaded = false
}

// Detect runs face detection plus landmark and embedding extraction over a
// single top-left-origin RGB frame. Only the first detected face is
// returned — go-face does not expose a confidence score, so "highest
// confidence" collapses to "first result" in this implementation.
func (e *Engine) Detect(width, height int, rgb []byte) (Detection, error) {
	if !e.CanEncode() {
		return Detection{}, ErrModelNotLoaded
	}
	if len(rgb) != width*height*3 {
		logging.Warnf("recognition: frame is %d bytes, want %d for %dx%d RGB", len(rgb), width*height*3, width, height)
		return Detection{}, ErrInvalidFrame
	}

	jpegBytes, err := encodeJPEG(width, height, rgb)
	if err != nil {
		return Detection{}, fmt.Errorf("recognition: encoding frame: %w", err)
	}

	faces, err := e.rec.Recognize(jpegBytes)
	if err != nil {
		return Detection{}, fmt.Errorf("recognition: detect failed: %w", err)
	}
	if len(faces) == 0 {
		return Detection{FaceFound: false}, nil
	}

	f := faces[0]
	rect := f.Rectangle
	return Detection{
		FaceFound:  true,
		Rect:       Rectangle{X: rect.Min.X, Y: rect.Min.Y, Width: rect.Dx(), Height: rect.Dy()},
		Embedding:  descriptorToEmbedding(f.Descriptor),
		Confidence: 1.0,
	}, nil
}

// Compare returns the minimum Euclidean distance between probe and every
// entry in templateSet, and whether that distance clears the engine's
// tolerance.
func (e *Engine) Compare(probe FaceEmbedding, templateSet []FaceEmbedding) (float64, bool) {
	if len(templateSet) == 0 {
		return math.MaxFloat64, false
	}

	best := math.MaxFloat64
	for _, tmpl := range templateSet {
		if d := EuclideanDistance(probe, tmpl); d < best {
			best = d
		}
	}
	return best, best <= e.tolerance
}

// Match finds, across every user's template set, the username with the
// smallest distance to probe that still clears tolerance.
func (e *Engine) Match(probe FaceEmbedding, users map[string][]FaceEmbedding) (username string, distance float64, ok bool) {
	distance = math.MaxFloat64
	for user, templates := range users {
		d, within := e.Compare(probe, templates)
		if within && d < distance {
			username = user
			distance = d
			ok = true
		}
	}
	return username, distance, ok
}

// EuclideanDistance computes the distance between two embeddings of equal
// length. Mismatched lengths are treated as maximally dissimilar rather
// than erroring, since a corrupt template should never match.
func EuclideanDistance(a, b FaceEmbedding) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// ErrModelNotLoaded is returned by Detect when the models failed to load.
var ErrModelNotLoaded = errors.New("recognition: models not loaded")

func descriptorToEmbedding(d face.Descriptor) FaceEmbedding {
	out := make(FaceEmbedding, EmbeddingSize)
	for i := 0; i < EmbeddingSize && i < len(d); i++ {
		out[i] = float64(d[i])
	}
	return out
}

// encodeJPEG wraps a packed RGB buffer into an image.Image and encodes it,
// since go-face's Recognize expects encoded image bytes, not raw pixels.
func encodeJPEG(width, height int, rgb []byte) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		r, g, b := rgb[i*3], rgb[i*3+1], rgb[i*3+2]
		o := i * 4
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = r, g, b, 255
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
