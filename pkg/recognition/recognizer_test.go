package recognition

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/Kagami/go-face"
)

func withMockEngine(t *testing.T, mock *MockFaceEngine) *Engine {
	t.Helper()
	orig := newFaceEngine
	newFaceEngine = func(string) (faceEngine, error) { return mock, nil }
	t.Cleanup(func() { newFaceEngine = orig })

	e, err := NewEngine("dummy", 0.45)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func TestNewEngineLoadFailure(t *testing.T) {
	orig := newFaceEngine
	newFaceEngine = func(string) (faceEngine, error) { return nil, errors.New("boom") }
	t.Cleanup(func() { newFaceEngine = orig })

	e, err := NewEngine("dummy", 0.45)
	if err == nil {
		t.Fatal("expected error from NewEngine")
	}
	if e.CanEncode() {
		t.Error("expected CanEncode to be false after a load failure")
	}
}

func TestDetectNotLoaded(t *testing.T) {
	e := &Engine{}
	_, err := e.Detect(2, 2, make([]byte, 12))
	if err != ErrModelNotLoaded {
		t.Fatalf("expected ErrModelNotLoaded, got %v", err)
	}
}

func TestDetectRejectsMismatchedBuffer(t *testing.T) {
	mock := &MockFaceEngine{}
	e := withMockEngine(t, mock)

	_, err := e.Detect(4, 4, make([]byte, 5))
	if err != ErrInvalidFrame {
		t.Fatalf("expected ErrInvalidFrame, got %v", err)
	}
}

func TestDetectNoFace(t *testing.T) {
	mock := &MockFaceEngine{
		RecognizeFunc: func([]byte) ([]face.Face, error) { return nil, nil },
	}
	e := withMockEngine(t, mock)

	d, err := e.Detect(2, 2, make([]byte, 12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.FaceFound {
		t.Fatal("expected FaceFound false")
	}
}

func TestDetectReturnsFirstFace(t *testing.T) {
	var descriptor face.Descriptor
	descriptor[0], descriptor[1] = 1, 2

	mock := &MockFaceEngine{
		RecognizeFunc: func([]byte) ([]face.Face, error) {
			return []face.Face{
				{Rectangle: image.Rect(0, 0, 10, 10), Descriptor: descriptor},
			}, nil
		},
	}
	e := withMockEngine(t, mock)

	d, err := e.Detect(4, 4, make([]byte, 48))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.FaceFound {
		t.Fatal("expected a face to be found")
	}
	if len(d.Embedding) != EmbeddingSize {
		t.Fatalf("expected embedding length %d, got %d", EmbeddingSize, len(d.Embedding))
	}
	if d.Embedding[0] != 1 || d.Embedding[1] != 2 {
		t.Errorf("unexpected embedding values: %v", d.Embedding[:2])
	}
	if d.Rect.Width != 10 || d.Rect.Height != 10 {
		t.Errorf("unexpected rect: %+v", d.Rect)
	}
}

func TestEuclideanDistance(t *testing.T) {
	a := FaceEmbedding{1, 2, 3}
	b := FaceEmbedding{4, 6, 8}
	// sqrt(3^2+4^2+5^2) = sqrt(50)
	if d := EuclideanDistance(a, b); d < 7.07 || d > 7.08 {
		t.Errorf("unexpected distance: %f", d)
	}
	if d := EuclideanDistance(a, a); d != 0 {
		t.Errorf("expected 0 distance for identical vectors, got %f", d)
	}
}

func TestEuclideanDistanceLengthMismatch(t *testing.T) {
	a := FaceEmbedding{1, 2, 3}
	b := FaceEmbedding{1, 2}
	if d := EuclideanDistance(a, b); d != math.MaxFloat64 {
		t.Errorf("expected MaxFloat64 for mismatched lengths, got %f", d)
	}
}

func TestCompare(t *testing.T) {
	e := &Engine{tolerance: 0.5, loaded: true, rec: &MockFaceEngine{}}
	probe := FaceEmbedding{1, 0, 0}
	templates := []FaceEmbedding{{0, 1, 0}, {1, 0.1, 0}}

	dist, ok := e.Compare(probe, templates)
	if !ok {
		t.Fatal("expected match within tolerance")
	}
	if dist > 0.2 {
		t.Errorf("expected small distance, got %f", dist)
	}

	if _, ok := e.Compare(probe, nil); ok {
		t.Error("expected no match against an empty template set")
	}
}

func TestMatch(t *testing.T) {
	e := &Engine{tolerance: 0.2, loaded: true, rec: &MockFaceEngine{}}
	probe := FaceEmbedding{1, 0, 0}
	users := map[string][]FaceEmbedding{
		"alice": {{10, 10, 10}},
		"bob":   {{1, 0.05, 0}},
	}

	username, _, ok := e.Match(probe, users)
	if !ok || username != "bob" {
		t.Fatalf("expected match on bob, got %q ok=%v", username, ok)
	}

	noUsers := map[string][]FaceEmbedding{"alice": {{10, 10, 10}}}
	if _, _, ok := e.Match(probe, noUsers); ok {
		t.Error("expected no match when every user is far outside tolerance")
	}
}
