package devices

import (
	"os"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		want Kind
	}{
		{"Integrated IR Camera", IR},
		{"IR Sensor Front", IR},
		{"Depth Camera", IR},
		{"ToF Sensor", IR},
		{"Camera: I", IR},
		{"HD Camera", RGB},
		{"Integrated Webcam", RGB},
		{"USB Camera", RGB},
		{"Camera: C", RGB},
		{"Integrated Camera", Unknown},
		{"", Unknown},
	}
	for _, c := range cases {
		if got := classify(c.name); got != c.want {
			t.Errorf("classify(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestOrderedForPrefersIRFirst(t *testing.T) {
	infos := []Info{
		{DeviceID: 1, Kind: Unknown},
		{DeviceID: 0, Kind: RGB},
		{DeviceID: 2, Kind: IR},
	}

	ordered := OrderedFor(infos, true)
	if len(ordered) != 3 || ordered[0].Kind != IR || ordered[1].Kind != RGB || ordered[2].Kind != Unknown {
		t.Fatalf("unexpected order with preferIR=true: %+v", ordered)
	}

	ordered = OrderedFor(infos, false)
	if ordered[0].Kind != RGB || ordered[1].Kind != IR || ordered[2].Kind != Unknown {
		t.Fatalf("unexpected order with preferIR=false: %+v", ordered)
	}
}

func TestListNoSysfsReturnsEmpty(t *testing.T) {
	// sysfsRoot is a package constant; on a machine without /sys/class/video4linux
	// List must return an empty slice rather than error.
	infos := List()
	if _, err := os.Stat(sysfsRoot); os.IsNotExist(err) && len(infos) != 0 {
		t.Fatalf("expected no cameras without %s, got %+v", sysfsRoot, infos)
	}
	for _, info := range infos {
		if info.DeviceID < 0 {
			t.Fatalf("unexpected negative device id: %+v", info)
		}
	}
}

type stubFrameReader struct {
	openErr  error
	readErr  error
	rgb      []byte
	closed   bool
}

func (s *stubFrameReader) Open(string) error { return s.openErr }
func (s *stubFrameReader) Read() (int, int, []byte, error) {
	return 1, 1, s.rgb, s.readErr
}
func (s *stubFrameReader) Close() error {
	s.closed = true
	return nil
}

func TestVerify(t *testing.T) {
	good := &stubFrameReader{rgb: []byte{1, 2, 3}}
	if !Verify(Info{DevicePath: "/dev/video2"}, func() FrameReader { return good }) {
		t.Fatal("expected verify to succeed when a frame is delivered")
	}
	if !good.closed {
		t.Fatal("expected handle to be closed after verify")
	}

	empty := &stubFrameReader{rgb: nil}
	if Verify(Info{DevicePath: "/dev/video2"}, func() FrameReader { return empty }) {
		t.Fatal("expected verify to fail when no frame is delivered")
	}
}
