package hub

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/oddmeter/camhub/internal/audit"
	"github.com/oddmeter/camhub/internal/codec"
	"github.com/oddmeter/camhub/internal/data"
	"github.com/oddmeter/camhub/internal/rail"
)

// The adapters in this file are the only place the connection router
// touches internal/data and internal/audit directly: they translate those
// packages' storage-shaped types into the narrow interfaces Supervisor
// depends on, so the task graph in session.go/recorder.go/etc. never
// imports database/sql.

// CameraStore adapts data.CameraModel to CameraLookup.
type CameraStore struct {
	Cameras data.CameraModel
}

func (s CameraStore) ByExactAddress(ctx context.Context, addr string) (Camera, error) {
	c, err := s.Cameras.GetByExactAddress(ctx, addr)
	if err != nil {
		return Camera{}, err
	}
	return Camera{ID: c.ID, Name: c.Name, Active: c.IsActive}, nil
}

func (s CameraStore) ByWildcardHost(ctx context.Context, host string) (Camera, error) {
	c, err := s.Cameras.GetByWildcardHost(ctx, host)
	if err != nil {
		return Camera{}, err
	}
	return Camera{ID: c.ID, Name: c.Name, Active: c.IsActive}, nil
}

// SettingStore adapts data.SettingModel to SettingLookup. A camera that
// somehow has no provisioned setting row falls back to FallbackFramerate
// and the default resolution rather than failing classification outright;
// in steady state every camera gets a setting row at creation time
// (admin.Service.CreateCamera), so this path is a defensive fallback, not
// the common case.
type SettingStore struct {
	Settings data.SettingModel
}

func (s SettingStore) CurrentSetting(ctx context.Context, cameraID int64) (rail.CameraSettingNoMeta, error) {
	cs, err := s.Settings.GetByCameraID(ctx, cameraID)
	if errors.Is(err, data.ErrRecordNotFound) {
		return rail.CameraSettingNoMeta{
			FlashlightEnabled: false,
			Resolution:        string(data.DefaultResolution),
			Framerate:         rail.FallbackFramerate,
		}, nil
	}
	if err != nil {
		return rail.CameraSettingNoMeta{}, err
	}
	return rail.CameraSettingNoMeta{
		FlashlightEnabled: cs.FlashlightEnabled,
		Resolution:        string(cs.Resolution),
		Framerate:         cs.Framerate,
	}, nil
}

// VideoStore adapts data.VideoModel to VideoStore.
type VideoStore struct {
	Videos data.VideoModel
}

func (s VideoStore) StartVideo(ctx context.Context, cameraID int64, filePath string, startTime time.Time) (int64, error) {
	return s.Videos.Start(ctx, cameraID, filePath, startTime)
}

func (s VideoStore) FinishVideo(ctx context.Context, videoID int64, endTime time.Time, fileSize int64) error {
	return s.Videos.Finish(ctx, videoID, endTime, fileSize)
}

// EntitlementStore adapts data.PermissionModel to EntitlementSource.
type EntitlementStore struct {
	Permissions data.PermissionModel
}

func (s EntitlementStore) EntitledCameras(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	return s.Permissions.EntitledCameraIDs(ctx, userID)
}

// CodecAdapter adapts a codec.Writer to Codec. codec.Handle's method set
// already matches CodecHandle's exactly, so the Open result needs no
// further wrapping beyond the return-type rename.
type CodecAdapter struct {
	Writer codec.Writer
}

func (a CodecAdapter) Open(path string, width, height, framerate int) (CodecHandle, error) {
	return a.Writer.Open(path, width, height, framerate)
}

// AuditStore adapts audit.Service to Auditor. A write failure is logged by
// the audit service itself (it spools to disk on DB failure); Handle
// treats LogSessionEvent as fire-and-forget so a session teardown is never
// blocked on audit persistence.
type AuditStore struct {
	Audit *audit.Service
}

func (a AuditStore) LogSessionEvent(ctx context.Context, action string, cameraID, userID int64, detail string) {
	var targetID string
	if cameraID != 0 {
		targetID = strconv.FormatInt(cameraID, 10)
	}
	a.Audit.WriteEvent(ctx, audit.AuditEvent{
		ActorUserID: userID,
		Action:      action,
		TargetType:  "camera",
		TargetID:    targetID,
		Result:      "info",
		Detail:      detail,
	})
}
