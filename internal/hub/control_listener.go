package hub

import (
	"context"
	"fmt"

	"github.com/oddmeter/camhub/internal/rail"
)

// controlListenerTask relays Control Rail events to the peer, with distinct
// behavior per role. See SPEC_FULL.md §4.6.
//
// Camera role: synthesizes an initial SettingChanged from the setting loaded
// at classification time (the camera must learn its configured setting even
// if nothing has changed since it last connected), then relays each
// CameraAction addressed to its own camera_id and tears the session down on
// CameraListChanged{Removed} for itself (an admin deleted the camera out
// from under the connection).
//
// Viewer role: ignores CameraAction entirely (a viewer has no per-camera
// control channel); on every CameraListChanged it refreshes the session's
// entitlement snapshot and forwards the delta to the peer.
type controlListenerTask struct {
	sess     *session
	isCamera bool
	cameraID int64
	userID   int64
	setting  rail.CameraSettingNoMeta

	entitlements EntitlementSource
}

func (t *controlListenerTask) name() string { return "control_listener" }

func (t *controlListenerTask) run(ctx context.Context) error {
	if t.isCamera {
		return t.runCamera(ctx)
	}
	return t.runViewer(ctx)
}

func (t *controlListenerTask) runCamera(ctx context.Context) error {
	if err := t.sess.writeJSON(cameraActionPayload{
		Kind:    "setting_changed",
		Setting: &t.setting,
	}); err != nil {
		return fmt.Errorf("send initial setting: %w", err)
	}

	sub := t.sess.controlRail.Subscribe()
	for {
		ev, ok := sub.Await(ctx)
		if !ok {
			return nil
		}

		switch ev.Kind {
		case rail.ControlCameraAction:
			if ev.CameraID != t.cameraID {
				continue
			}
			payload := cameraActionPayload{Kind: "restart"}
			if ev.Action.Kind == rail.CameraMessageSettingChanged {
				payload = cameraActionPayload{Kind: "setting_changed", Setting: &ev.Action.Setting}
			}
			if err := t.sess.writeJSON(payload); err != nil {
				return fmt.Errorf("relay camera action: %w", err)
			}
		case rail.ControlCameraListChanged:
			if ev.CameraID == t.cameraID && ev.Delta == rail.ListRemoved {
				return fmt.Errorf("camera %d removed from the system", t.cameraID)
			}
			// other cameras' list changes are irrelevant to a camera peer.
		}
	}
}

func (t *controlListenerTask) runViewer(ctx context.Context) error {
	sub := t.sess.controlRail.Subscribe()
	for {
		ev, ok := sub.Await(ctx)
		if !ok {
			return nil
		}
		if ev.Kind != rail.ControlCameraListChanged {
			continue
		}

		entitled, err := t.entitlements.EntitledCameras(ctx, t.userID)
		if err != nil {
			t.sess.logger.Printf("control_listener: refresh entitlements for user %d: %v", t.userID, err)
			continue
		}
		t.sess.entitlements.refresh(entitled)

		if err := t.sess.writeJSON(listChangedPayload{
			Kind:     "camera_list_changed",
			CameraID: ev.CameraID,
			Delta:    ev.Delta.String(),
		}); err != nil {
			return fmt.Errorf("relay list change: %w", err)
		}
	}
}

type cameraActionPayload struct {
	Kind    string                    `json:"kind"`
	Setting *rail.CameraSettingNoMeta `json:"setting,omitempty"`
}

type listChangedPayload struct {
	Kind     string `json:"kind"`
	CameraID int64  `json:"camera_id"`
	Delta    string `json:"delta"`
}
