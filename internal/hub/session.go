package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/oddmeter/camhub/internal/rail"
)

// entitlementSnapshot is a viewer session's in-memory set of visible
// camera_ids, exclusively owned by the session but read by the Viewer Task
// and refreshed by the Control Listener Task.
type entitlementSnapshot struct {
	mu  sync.RWMutex
	set map[int64]struct{}
}

func newEntitlementSnapshot(initial map[int64]struct{}) *entitlementSnapshot {
	return &entitlementSnapshot{set: initial}
}

func (e *entitlementSnapshot) has(cameraID int64) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.set[cameraID]
	return ok
}

func (e *entitlementSnapshot) refresh(set map[int64]struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.set = set
}

// session holds everything the four sibling tasks of one connection share:
// the peer's write-locked outbound half, the rails, and the role binding
// produced by classification.
type session struct {
	id     string
	conn   Peer
	logger *log.Logger

	writeMu sync.Mutex

	frameRail   *rail.Broadcaster[rail.FrameEvent]
	controlRail *rail.Broadcaster[rail.ControlEvent]

	isCamera bool
	cameraID int64 // valid when isCamera
	userID   int64 // valid when !isCamera

	entitlements *entitlementSnapshot // valid when !isCamera
}

// writeMessage writes a frame to the peer under the session's single write
// lock, so no two tasks are ever mid-write simultaneously.
func (s *session) writeMessage(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

func (s *session) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return s.writeMessage(websocket.TextMessage, b)
}

// writeClose sends a close frame with the given reason, best-effort.
func (s *session) writeClose(reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = s.conn.WriteMessage(websocket.CloseMessage, msg)
}

// task is one sibling in the per-session task graph. run blocks until the
// task exits for any reason; its return value is logged and triggers
// sibling teardown.
type task interface {
	run(ctx context.Context) error
	name() string
}
