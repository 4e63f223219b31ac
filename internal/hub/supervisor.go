package hub

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oddmeter/camhub/internal/rail"
)

var (
	ErrClassificationFailed = errors.New("classification failed")
	ErrNoAuthenticatedUser  = errors.New("no authenticated user for viewer session")
)

const (
	classifyCamera         = "camera"
	classifyCameraAnyPort  = "camera_any_port"
)

// Supervisor accepts an upgraded peer channel, classifies it, spawns the
// per-session task graph, and guarantees cleanup on any sibling's exit.
type Supervisor struct {
	Cameras      CameraLookup
	Settings     SettingLookup
	Videos       VideoStore
	Entitlements EntitlementSource
	Codec        Codec
	Audit        Auditor
	Clock        Clock

	FrameRail   *rail.Broadcaster[rail.FrameEvent]
	ControlRail *rail.Broadcaster[rail.ControlEvent]

	VideoDir string

	// RecorderDrainTimeout bounds how long Handle waits, after the first
	// task exits, for all of the session's tasks (the Recorder Task
	// included) to return. It applies to every teardown; zero waits without
	// a bound.
	RecorderDrainTimeout time.Duration

	Logger *log.Logger
}

func (s *Supervisor) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.New(os.Stdout, "hub: ", log.LstdFlags)
}

func (s *Supervisor) clock() Clock {
	if s.Clock != nil {
		return s.Clock
	}
	return RealClock{}
}

// Handle runs one connection's full lifecycle: classify, spawn tasks, await
// first exit, teardown. It returns once the session is fully cleaned up.
// peerAddr is the remote address used for exact-endpoint camera matching.
// authenticatedUserID is non-nil when the HTTP layer has already resolved a
// viewer's identity (e.g. via a bearer token query parameter on upgrade).
func (s *Supervisor) Handle(ctx context.Context, conn Peer, peerAddr string, authenticatedUserID *int64) {
	logger := s.logger()
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := &session{
		id:          NewSessionID(),
		conn:        conn,
		logger:      logger,
		frameRail:   s.FrameRail,
		controlRail: s.ControlRail,
	}

	role, err := s.classify(sessionCtx, conn, peerAddr, authenticatedUserID, sess)
	if err != nil {
		logger.Printf("session %s: classification failed: %v", sess.id, err)
		if s.Audit != nil {
			s.Audit.LogSessionEvent(ctx, "classification_failed", 0, 0, err.Error())
		}
		conn.Close()
		return
	}

	tasks := s.buildTasks(sess, role)

	var wg sync.WaitGroup
	errCh := make(chan taskResult, len(tasks))
	for _, t := range tasks {
		wg.Add(1)
		go func(t task) {
			defer wg.Done()
			errCh <- taskResult{name: t.name(), err: t.run(sessionCtx)}
		}(t)
	}

	first := <-errCh
	logger.Printf("session %s: task %q exited (%v), tearing down", sess.id, first.name, first.err)

	cancel()       // signal the session cancellation token
	conn.Close()   // unblock any task still parked in a peer read/write

	drained := make(chan struct{})
	go func() {
		wg.Wait()
		close(drained)
	}()
	if s.RecorderDrainTimeout > 0 {
		select {
		case <-drained:
		case <-time.After(s.RecorderDrainTimeout):
			logger.Printf("session %s: recorder drain timed out", sess.id)
		}
	} else {
		<-drained
	}

	if s.Audit != nil {
		s.Audit.LogSessionEvent(ctx, "session_closed", role.cameraID, role.userID, first.name)
	}
}

type taskResult struct {
	name string
	err  error
}

type role struct {
	isCamera bool
	cameraID int64
	userID   int64
	setting  rail.CameraSettingNoMeta
}

// classify implements §4.1's classification protocol: consume inbound
// messages, ignoring (debug-logging) anything that isn't the first text
// message, which determines the peer's role.
func (s *Supervisor) classify(ctx context.Context, conn Peer, peerAddr string, authenticatedUserID *int64, sess *session) (role, error) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return role{}, fmt.Errorf("%w: %v", ErrClassificationFailed, err)
		}
		if mt != websocket.TextMessage {
			s.logger().Printf("session %s: ignoring non-text message before classification", sess.id)
			continue
		}

		text := string(data)
		switch text {
		case classifyCamera, classifyCameraAnyPort:
			cam, setting, err := s.resolveCamera(ctx, text, peerAddr)
			if err != nil {
				return role{}, err
			}
			sess.isCamera = true
			sess.cameraID = cam.ID
			return role{isCamera: true, cameraID: cam.ID, setting: setting}, nil
		default:
			if authenticatedUserID == nil {
				return role{}, fmt.Errorf("%w: %v", ErrClassificationFailed, ErrNoAuthenticatedUser)
			}
			entitled, err := s.Entitlements.EntitledCameras(ctx, *authenticatedUserID)
			if err != nil {
				return role{}, fmt.Errorf("%w: load entitlements: %v", ErrClassificationFailed, err)
			}
			sess.userID = *authenticatedUserID
			sess.entitlements = newEntitlementSnapshot(entitled)
			return role{isCamera: false, userID: *authenticatedUserID}, nil
		}
	}
}

func (s *Supervisor) resolveCamera(ctx context.Context, classifyText, peerAddr string) (Camera, rail.CameraSettingNoMeta, error) {
	var cam Camera
	var err error
	if classifyText == classifyCameraAnyPort {
		host, _, splitErr := net.SplitHostPort(peerAddr)
		if splitErr != nil {
			host = peerAddr
		}
		cam, err = s.Cameras.ByWildcardHost(ctx, host)
	} else {
		cam, err = s.Cameras.ByExactAddress(ctx, peerAddr)
	}
	if err != nil {
		return Camera{}, rail.CameraSettingNoMeta{}, fmt.Errorf("%w: camera lookup: %v", ErrClassificationFailed, err)
	}
	if !cam.Active {
		return Camera{}, rail.CameraSettingNoMeta{}, fmt.Errorf("%w: camera %d is not active", ErrClassificationFailed, cam.ID)
	}

	setting, err := s.Settings.CurrentSetting(ctx, cam.ID)
	if err != nil {
		return Camera{}, rail.CameraSettingNoMeta{}, fmt.Errorf("%w: setting lookup: %v", ErrClassificationFailed, err)
	}
	return cam, setting, nil
}

func (s *Supervisor) buildTasks(sess *session, r role) []task {
	tasks := []task{
		&inboundTask{sess: sess, isCamera: r.isCamera, cameraID: r.cameraID},
		&controlListenerTask{
			sess:         sess,
			isCamera:     r.isCamera,
			cameraID:     r.cameraID,
			userID:       r.userID,
			setting:      r.setting,
			entitlements: s.Entitlements,
		},
	}
	if r.isCamera {
		tasks = append(tasks, &recorderTask{
			sess:      sess,
			cameraID:  r.cameraID,
			setting:   r.setting,
			startTime: s.clock().Now(),
			videoDir:  s.VideoDir,
			videos:    s.Videos,
			codec:     s.Codec,
		})
	} else {
		tasks = append(tasks, &viewerTask{sess: sess})
	}
	return tasks
}
