package codec

import (
	"image"
	"sync"
)

// FakeWriter is the codec capability's fake implementation, required by §9's
// "Codec as a capability" design note so Recorder Task tests can assert
// frame/byte invariants (S1/S2/S3/S6) without a real encoder on PATH.
type FakeWriter struct {
	mu      sync.Mutex
	Opened  []FakeOpen
	Handles []*FakeHandle
}

type FakeOpen struct {
	Path                    string
	Width, Height, Framerate int
}

func (w *FakeWriter) Open(path string, width, height, framerate int) (Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Opened = append(w.Opened, FakeOpen{Path: path, Width: width, Height: height, Framerate: framerate})
	h := &FakeHandle{}
	w.Handles = append(w.Handles, h)
	return h, nil
}

// FakeHandle returns every appended frame's pixel count as its "bytes
// written", and records the number of appended frames and whether Close
// was called, for assertion by tests.
type FakeHandle struct {
	mu       sync.Mutex
	Frames   int
	Closed   bool
	FailNext bool
}

func (h *FakeHandle) Append(img image.Image) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.FailNext {
		return 0, errFakeAppend
	}
	b := img.Bounds()
	n := int64(b.Dx() * b.Dy())
	h.Frames++
	return n, nil
}

func (h *FakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Closed = true
	return nil
}

var errFakeAppend = fakeAppendError{}

type fakeAppendError struct{}

func (fakeAppendError) Error() string { return "fake codec: forced append failure" }
