package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"log"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddmeter/camhub/internal/codec"
	"github.com/oddmeter/camhub/internal/rail"
)

func testLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func tinyJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture jpeg: %v", err)
	}
	return buf.Bytes()
}

// TestSupervisorCameraLifecycle covers S2-ish: a camera connects, streams
// frames, disconnects, and the Recorder Task's video row is finalized with
// the accumulated byte total, matching invariants 2 ("exactly one Video row
// per camera session") and 3 ("Cleanup": peer teardown always finalizes
// the recording and closes the codec handle).
func TestSupervisorCameraLifecycle(t *testing.T) {
	cameras := &fakeCameraLookup{byAddr: map[string]Camera{
		"10.0.0.5:9000": {ID: 1, Name: "front-door", Active: true},
	}}
	settings := &fakeSettingLookup{setting: rail.CameraSettingNoMeta{
		FlashlightEnabled: false, Resolution: "SVGA", Framerate: 5,
	}}
	videos := &fakeVideoStore{}
	codecW := &codec.FakeWriter{}
	audit := &fakeAuditor{}

	sup := &Supervisor{
		Cameras:              cameras,
		Settings:             settings,
		Videos:               videos,
		Entitlements:         &fakeEntitlementSource{sets: map[int64]map[int64]struct{}{}},
		Codec:                codecW,
		Audit:                audit,
		Clock:                fixedClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		FrameRail:            rail.NewBroadcaster(rail.FrameSentinel),
		ControlRail:          rail.NewBroadcaster(rail.ControlSentinel),
		VideoDir:             t.TempDir(),
		RecorderDrainTimeout: 2 * time.Second,
		Logger:               testLogger(),
	}

	peer := newFakePeer()
	done := make(chan struct{})
	go func() {
		sup.Handle(context.Background(), peer, "10.0.0.5:9000", nil)
		close(done)
	}()

	peer.push(websocket.TextMessage, []byte("camera"))

	// control listener's initial setting_changed, proving the camera role
	// branch runs before any frame is sent.
	initial := peer.nextWrite(t)
	var initialPayload cameraActionPayload
	if err := json.Unmarshal(initial.data, &initialPayload); err != nil {
		t.Fatalf("unmarshal initial control payload: %v", err)
	}
	if initialPayload.Kind != "setting_changed" || initialPayload.Setting == nil {
		t.Fatalf("expected initial setting_changed payload, got %+v", initialPayload)
	}

	frame := tinyJPEG(t)
	for i := 0; i < 3; i++ {
		peer.push(websocket.BinaryMessage, frame)
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(codecW.Handles) == 1 && codecW.Handles[0].Frames == 3
	})

	peer.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor.Handle did not return after peer close")
	}

	started, finished := videos.snapshot()
	if len(started) != 1 || started[0].cameraID != 1 {
		t.Fatalf("expected one started video for camera 1, got %+v", started)
	}
	if len(finished) != 1 {
		t.Fatalf("expected one finished video, got %+v", finished)
	}
	if finished[0].size != 48 { // 3 frames * 16 pixels (4x4) each
		t.Fatalf("expected accumulated size 48, got %d", finished[0].size)
	}
	if !codecW.Handles[0].Closed {
		t.Fatal("expected codec handle to be closed on teardown")
	}

	events := audit.snapshot()
	if len(events) == 0 || events[len(events)-1].action != "session_closed" {
		t.Fatalf("expected a session_closed audit event, got %+v", events)
	}
}

// TestSupervisorRejectsInactiveCamera covers classification's camera
// branch: an inactive camera must never be admitted into the task graph.
func TestSupervisorRejectsInactiveCamera(t *testing.T) {
	cameras := &fakeCameraLookup{byAddr: map[string]Camera{
		"10.0.0.5:9000": {ID: 1, Name: "front-door", Active: false},
	}}
	audit := &fakeAuditor{}
	sup := &Supervisor{
		Cameras:      cameras,
		Settings:     &fakeSettingLookup{},
		Entitlements: &fakeEntitlementSource{},
		Audit:        audit,
		FrameRail:    rail.NewBroadcaster(rail.FrameSentinel),
		ControlRail:  rail.NewBroadcaster(rail.ControlSentinel),
		Logger:       testLogger(),
	}

	peer := newFakePeer()
	done := make(chan struct{})
	go func() {
		sup.Handle(context.Background(), peer, "10.0.0.5:9000", nil)
		close(done)
	}()
	peer.push(websocket.TextMessage, []byte("camera"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor.Handle did not return for an inactive camera")
	}

	events := audit.snapshot()
	if len(events) != 1 || events[0].action != "classification_failed" {
		t.Fatalf("expected a classification_failed audit event, got %+v", events)
	}
}

// TestSupervisorViewerRequiresAuthenticatedUser covers the viewer branch of
// classification when the HTTP layer never resolved an identity.
func TestSupervisorViewerRequiresAuthenticatedUser(t *testing.T) {
	audit := &fakeAuditor{}
	sup := &Supervisor{
		Cameras:      &fakeCameraLookup{},
		Settings:     &fakeSettingLookup{},
		Entitlements: &fakeEntitlementSource{},
		Audit:        audit,
		FrameRail:    rail.NewBroadcaster(rail.FrameSentinel),
		ControlRail:  rail.NewBroadcaster(rail.ControlSentinel),
		Logger:       testLogger(),
	}

	peer := newFakePeer()
	done := make(chan struct{})
	go func() {
		sup.Handle(context.Background(), peer, "203.0.113.7:54321", nil)
		close(done)
	}()
	peer.push(websocket.TextMessage, []byte("viewer"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor.Handle did not return for an unauthenticated viewer")
	}
	if events := audit.snapshot(); len(events) != 1 || events[0].action != "classification_failed" {
		t.Fatalf("expected a classification_failed audit event, got %+v", events)
	}
}

// TestViewerTaskFiltersByEntitlement covers invariant 1: a viewer only ever
// receives frames for cameras it is entitled to, even when the Frame Rail
// carries frames for other cameras in between.
func TestViewerTaskFiltersByEntitlement(t *testing.T) {
	peer := newFakePeer()
	sess := &session{
		id:           "viewer-1",
		conn:         peer,
		logger:       testLogger(),
		frameRail:    rail.NewBroadcaster(rail.FrameSentinel),
		entitlements: newEntitlementSnapshot(map[int64]struct{}{1: {}}),
	}
	vt := &viewerTask{sess: sess}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go vt.run(ctx)

	sess.frameRail.Publish(rail.FrameEvent{CameraID: 2, Timestamp: 1, Image: []byte("not-entitled")})
	sess.frameRail.Publish(rail.FrameEvent{CameraID: 1, Timestamp: 2, Image: []byte("entitled")})

	w := peer.nextWrite(t)
	var payload viewerFramePayload
	if err := json.Unmarshal(w.data, &payload); err != nil {
		t.Fatalf("unmarshal viewer frame: %v", err)
	}
	if payload.CameraID != 1 {
		t.Fatalf("expected only the entitled camera's frame to be delivered, got camera_id %d", payload.CameraID)
	}
}

// TestControlListenerCameraTearsDownOnRemoval covers §4.6's camera-role
// teardown trigger: CameraListChanged{Removed} addressed to the camera
// itself must end the Control Listener Task with an error.
func TestControlListenerCameraTearsDownOnRemoval(t *testing.T) {
	peer := newFakePeer()
	sess := &session{
		id:          "cam-1",
		conn:        peer,
		logger:      testLogger(),
		controlRail: rail.NewBroadcaster(rail.ControlSentinel),
		isCamera:    true,
		cameraID:    7,
	}
	clt := &controlListenerTask{
		sess:     sess,
		isCamera: true,
		cameraID: 7,
		setting:  rail.CameraSettingNoMeta{Resolution: "VGA", Framerate: 10},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- clt.run(ctx) }()

	peer.nextWrite(t) // initial setting_changed, not under test here

	sess.controlRail.Publish(rail.CameraListChangedEvent(7, rail.ListRemoved))

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected an error to trigger teardown on camera removal")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("control listener did not exit after camera removal")
	}
}

// TestControlListenerCameraIgnoresOtherCamerasRemoval ensures a removal
// event for a different camera_id never tears down an unrelated session.
func TestControlListenerCameraIgnoresOtherCamerasRemoval(t *testing.T) {
	peer := newFakePeer()
	sess := &session{
		id:          "cam-1",
		conn:        peer,
		logger:      testLogger(),
		controlRail: rail.NewBroadcaster(rail.ControlSentinel),
		isCamera:    true,
		cameraID:    7,
	}
	clt := &controlListenerTask{sess: sess, isCamera: true, cameraID: 7}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- clt.run(ctx) }()

	peer.nextWrite(t)
	sess.controlRail.Publish(rail.CameraListChangedEvent(99, rail.ListRemoved))

	select {
	case err := <-errCh:
		t.Fatalf("expected the listener to keep running, got exit with err=%v", err)
	case <-time.After(100 * time.Millisecond):
	}
	cancel()
	<-errCh
}

// TestControlListenerCameraRelaysMatchingAction covers the relay half of
// §4.6's camera branch: a SettingChanged addressed to this camera is
// forwarded verbatim, one addressed to another camera is not.
func TestControlListenerCameraRelaysMatchingAction(t *testing.T) {
	peer := newFakePeer()
	sess := &session{
		id:          "cam-1",
		conn:        peer,
		logger:      testLogger(),
		controlRail: rail.NewBroadcaster(rail.ControlSentinel),
		isCamera:    true,
		cameraID:    7,
	}
	clt := &controlListenerTask{sess: sess, isCamera: true, cameraID: 7}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go clt.run(ctx)

	peer.nextWrite(t) // initial

	sess.controlRail.Publish(rail.CameraActionEvent(99, rail.CameraMessage{Kind: rail.CameraMessageRestart}))
	sess.controlRail.Publish(rail.CameraActionEvent(7, rail.CameraMessage{
		Kind:    rail.CameraMessageSettingChanged,
		Setting: rail.CameraSettingNoMeta{Resolution: "VGA", Framerate: 30},
	}))

	w := peer.nextWrite(t)
	var payload cameraActionPayload
	if err := json.Unmarshal(w.data, &payload); err != nil {
		t.Fatalf("unmarshal relayed action: %v", err)
	}
	if payload.Kind != "setting_changed" || payload.Setting == nil || payload.Setting.Framerate != 30 {
		t.Fatalf("expected the setting addressed to camera 7 to be relayed, got %+v", payload)
	}
}

// TestControlListenerViewerRefreshesEntitlements covers §4.6's viewer
// branch: any CameraListChanged refreshes the entitlement snapshot and is
// forwarded to the peer as a delta.
func TestControlListenerViewerRefreshesEntitlements(t *testing.T) {
	peer := newFakePeer()
	sess := &session{
		id:           "viewer-1",
		conn:         peer,
		logger:       testLogger(),
		controlRail:  rail.NewBroadcaster(rail.ControlSentinel),
		isCamera:     false,
		userID:       42,
		entitlements: newEntitlementSnapshot(map[int64]struct{}{}),
	}
	ents := &fakeEntitlementSource{sets: map[int64]map[int64]struct{}{42: {5: {}}}}
	clt := &controlListenerTask{sess: sess, isCamera: false, userID: 42, entitlements: ents}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go clt.run(ctx)

	sess.controlRail.Publish(rail.CameraListChangedEvent(5, rail.ListAdded))

	w := peer.nextWrite(t)
	var payload listChangedPayload
	if err := json.Unmarshal(w.data, &payload); err != nil {
		t.Fatalf("unmarshal list-changed payload: %v", err)
	}
	if payload.CameraID != 5 || payload.Delta != "added" {
		t.Fatalf("expected camera 5 added, got %+v", payload)
	}
	if !sess.entitlements.has(5) {
		t.Fatal("expected entitlement snapshot to be refreshed with camera 5")
	}
}

// TestRecorderTaskFailsClosedOnCodecError covers the Codec failure policy:
// an Append error is fatal to the Recorder Task alone, and the video row is
// still finalized with whatever was accumulated before the failure.
func TestRecorderTaskFailsClosedOnCodecError(t *testing.T) {
	videos := &fakeVideoStore{}
	codecW := &codec.FakeWriter{}
	sess := &session{
		id:        "cam-2",
		logger:    testLogger(),
		frameRail: rail.NewBroadcaster(rail.FrameSentinel),
	}
	rt := &recorderTask{
		sess:      sess,
		cameraID:  3,
		setting:   rail.CameraSettingNoMeta{Resolution: "SVGA", Framerate: 5},
		startTime: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		videoDir:  t.TempDir(),
		videos:    videos,
		codec:     codecW,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- rt.run(ctx) }()

	waitFor(t, time.Second, func() bool { return len(codecW.Handles) == 1 })
	codecW.Handles[0].FailNext = true

	sess.frameRail.Publish(rail.FrameEvent{CameraID: 3, Timestamp: 1, Image: tinyJPEG(t)})

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected a codec append failure to end the recorder task")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recorder task did not exit after codec append failure")
	}

	_, finished := videos.snapshot()
	if len(finished) != 1 {
		t.Fatalf("expected the video row to still be finalized, got %+v", finished)
	}
	if !codecW.Handles[0].Closed {
		t.Fatal("expected the codec handle to be closed even on append failure")
	}
}
