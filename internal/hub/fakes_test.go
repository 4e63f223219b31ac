package hub

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/oddmeter/camhub/internal/rail"
)

// fakePeer is an in-memory Peer: pushed messages are delivered to the next
// ReadMessage call, and every WriteMessage is observable via nextWrite.
type fakePeer struct {
	in     chan wireMsg
	writes chan wireMsg
	closed chan struct{}
	once   sync.Once
}

type wireMsg struct {
	mt   int
	data []byte
}

func newFakePeer() *fakePeer {
	return &fakePeer{
		in:     make(chan wireMsg, 64),
		writes: make(chan wireMsg, 64),
		closed: make(chan struct{}),
	}
}

func (p *fakePeer) push(mt int, data []byte) {
	p.in <- wireMsg{mt: mt, data: data}
}

func (p *fakePeer) ReadMessage() (int, []byte, error) {
	select {
	case m := <-p.in:
		return m.mt, m.data, nil
	case <-p.closed:
		return 0, nil, io.EOF
	}
}

func (p *fakePeer) WriteMessage(mt int, data []byte) error {
	select {
	case <-p.closed:
		return errors.New("fakePeer: write on closed connection")
	default:
	}
	cp := append([]byte(nil), data...)
	select {
	case p.writes <- wireMsg{mt: mt, data: cp}:
	default:
	}
	return nil
}

func (p *fakePeer) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePeer) nextWrite(t *testing.T) wireMsg {
	t.Helper()
	select {
	case m := <-p.writes:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for peer write")
		return wireMsg{}
	}
}

type fakeCameraLookup struct {
	byAddr map[string]Camera
	byHost map[string]Camera
}

func (f *fakeCameraLookup) ByExactAddress(ctx context.Context, addr string) (Camera, error) {
	if c, ok := f.byAddr[addr]; ok {
		return c, nil
	}
	return Camera{}, errors.New("fakeCameraLookup: no camera at " + addr)
}

func (f *fakeCameraLookup) ByWildcardHost(ctx context.Context, host string) (Camera, error) {
	if c, ok := f.byHost[host]; ok {
		return c, nil
	}
	return Camera{}, errors.New("fakeCameraLookup: no camera on host " + host)
}

type fakeSettingLookup struct {
	setting rail.CameraSettingNoMeta
}

func (f *fakeSettingLookup) CurrentSetting(ctx context.Context, cameraID int64) (rail.CameraSettingNoMeta, error) {
	return f.setting, nil
}

type startedVideo struct {
	cameraID  int64
	path      string
	startTime time.Time
}

type finishedVideo struct {
	videoID int64
	endTime time.Time
	size    int64
}

type fakeVideoStore struct {
	mu       sync.Mutex
	nextID   int64
	started  []startedVideo
	finished []finishedVideo
}

func (f *fakeVideoStore) StartVideo(ctx context.Context, cameraID int64, path string, start time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.started = append(f.started, startedVideo{cameraID: cameraID, path: path, startTime: start})
	return f.nextID, nil
}

func (f *fakeVideoStore) FinishVideo(ctx context.Context, videoID int64, end time.Time, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, finishedVideo{videoID: videoID, endTime: end, size: size})
	return nil
}

func (f *fakeVideoStore) snapshot() ([]startedVideo, []finishedVideo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]startedVideo(nil), f.started...), append([]finishedVideo(nil), f.finished...)
}

type fakeEntitlementSource struct {
	mu   sync.Mutex
	sets map[int64]map[int64]struct{}
}

func (f *fakeEntitlementSource) EntitledCameras(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets[userID], nil
}

type auditEvent struct {
	action   string
	cameraID int64
	userID   int64
	detail   string
}

type fakeAuditor struct {
	mu     sync.Mutex
	events []auditEvent
}

func (f *fakeAuditor) LogSessionEvent(ctx context.Context, action string, cameraID, userID int64, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, auditEvent{action: action, cameraID: cameraID, userID: userID, detail: detail})
}

func (f *fakeAuditor) snapshot() []auditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]auditEvent(nil), f.events...)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
