// Package admin implements the Admin Command Surface: camera, setting,
// permission, and user CRUD plus the Control Rail publishes each
// mutation triggers.
package admin

import (
	"context"
	"errors"

	"github.com/oddmeter/camhub/internal/audit"
	"github.com/oddmeter/camhub/internal/authsession"
	"github.com/oddmeter/camhub/internal/data"
	"github.com/oddmeter/camhub/internal/rail"
	"github.com/oddmeter/camhub/internal/tokens"
)

var (
	ErrNotAdmin       = errors.New("caller is not the admin identity")
	ErrForbidden      = errors.New("caller lacks can_control on this camera")
	ErrInvalidSetting = errors.New("invalid setting: framerate must be in [1,60] and resolution one of SVGA/VGA")
	ErrCameraNotFound = data.ErrRecordNotFound
	ErrUserNotFound   = data.ErrUserNotFound
)

// Service is the Admin Command Surface's business logic, independent of
// the HTTP transport in router.go/handlers.go.
type Service struct {
	Cameras     data.CameraModel
	Settings    data.SettingModel
	Permissions data.PermissionModel
	Users       data.UserModel
	Videos      data.VideoModel
	Audit       *audit.Service
	ControlRail *rail.Broadcaster[rail.ControlEvent]
	Tokens      *tokens.Manager
	Sessions    *authsession.Manager
}

// AdminUserID looks up the well-known "admin" username and returns its
// user id. The admin-only handlers do not use it; they check the caller's
// AuthContext.IsAdmin flag.
func (s *Service) AdminUserID(ctx context.Context) (int64, error) {
	u, err := s.Users.GetByUsername(ctx, data.AdminUsername)
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

func (s *Service) audit(ctx context.Context, actorUserID int64, action, result, detail string) {
	s.Audit.WriteEvent(ctx, audit.AuditEvent{
		ActorUserID: actorUserID,
		Action:      action,
		Result:      result,
		Detail:      detail,
	})
}

// CreateCamera provisions a default setting {flashlight_enabled=false,
// resolution=SVGA, framerate=5}, grants the admin control, and zeroes out
// a permission row for every other existing user.
func (s *Service) CreateCamera(ctx context.Context, actorUserID int64, name, address string) (*data.Camera, error) {
	c := &data.Camera{Name: name, Address: address, IsActive: true}
	if err := s.Cameras.Create(ctx, c); err != nil {
		s.audit(ctx, actorUserID, "camera.create", "failure", err.Error())
		return nil, err
	}

	setting := &data.CameraSetting{
		CameraID:          c.ID,
		FlashlightEnabled: data.DefaultFlashlightEnabled,
		Resolution:        data.DefaultResolution,
		Framerate:         data.DefaultFramerate,
		ModifiedBy:        actorUserID,
	}
	if err := s.Settings.Create(ctx, setting); err != nil {
		s.audit(ctx, actorUserID, "camera.create", "failure", err.Error())
		return nil, err
	}

	if err := s.Permissions.ProvisionForNewCamera(ctx, c.ID, actorUserID); err != nil {
		s.audit(ctx, actorUserID, "camera.create", "failure", err.Error())
		return nil, err
	}

	s.audit(ctx, actorUserID, "camera.create", "success", c.Name)
	s.ControlRail.Publish(rail.CameraListChangedEvent(c.ID, rail.ListAdded))
	return c, nil
}

// DeleteCamera removes the camera row. A delete of a non-existent camera
// fails with data.ErrRecordNotFound and publishes no rail event (§8
// idempotent-admin-actions property).
func (s *Service) DeleteCamera(ctx context.Context, actorUserID, cameraID int64) error {
	if err := s.Cameras.Delete(ctx, cameraID); err != nil {
		s.audit(ctx, actorUserID, "camera.delete", "failure", err.Error())
		return err
	}
	s.audit(ctx, actorUserID, "camera.delete", "success", "")
	s.ControlRail.Publish(rail.CameraListChangedEvent(cameraID, rail.ListRemoved))
	return nil
}

func (s *Service) RestartCamera(ctx context.Context, actorUserID, cameraID int64) error {
	if _, err := s.Cameras.GetByID(ctx, cameraID); err != nil {
		s.audit(ctx, actorUserID, "camera.restart", "failure", err.Error())
		return err
	}
	s.audit(ctx, actorUserID, "camera.restart", "success", "")
	s.ControlRail.Publish(rail.CameraActionEvent(cameraID, rail.CameraMessage{Kind: rail.CameraMessageRestart}))
	return nil
}

// UpdateSetting enforces the framerate/resolution validation in §4.7 before
// writing; actorUserID must have can_control on the camera (checked by the
// caller, since only the HTTP layer knows the caller's identity vs. admin).
func (s *Service) UpdateSetting(ctx context.Context, actorUserID, settingID int64, flashlight bool, resolution string, framerate int) (*data.CameraSetting, error) {
	res := data.Resolution(resolution)
	if framerate < data.MinFramerate || framerate > data.MaxFramerate || !res.Valid() {
		return nil, ErrInvalidSetting
	}

	existing, err := s.Settings.GetByID(ctx, settingID)
	if err != nil {
		s.audit(ctx, actorUserID, "setting.update", "failure", err.Error())
		return nil, err
	}

	existing.FlashlightEnabled = flashlight
	existing.Resolution = res
	existing.Framerate = framerate
	existing.ModifiedBy = actorUserID
	if err := s.Settings.Update(ctx, existing); err != nil {
		s.audit(ctx, actorUserID, "setting.update", "failure", err.Error())
		return nil, err
	}

	s.audit(ctx, actorUserID, "setting.update", "success", "")
	s.ControlRail.Publish(rail.CameraActionEvent(existing.CameraID, rail.CameraMessage{
		Kind: rail.CameraMessageSettingChanged,
		Setting: rail.CameraSettingNoMeta{
			FlashlightEnabled: existing.FlashlightEnabled,
			Resolution:        string(existing.Resolution),
			Framerate:         existing.Framerate,
		},
	}))
	return existing, nil
}

func (s *Service) UpdatePermission(ctx context.Context, actorUserID, permissionID int64, canView, canControl bool) (*data.CameraPermission, error) {
	p, err := s.Permissions.Update(ctx, permissionID, canView, canControl)
	if err != nil {
		s.audit(ctx, actorUserID, "permission.update", "failure", err.Error())
		return nil, err
	}
	s.audit(ctx, actorUserID, "permission.update", "success", "")
	s.ControlRail.Publish(rail.CameraListChangedEvent(p.CameraID, rail.ListUpdated))
	return p, nil
}

// CreateUser provisions a zeroed permission row against every existing
// camera for the new user.
func (s *Service) CreateUser(ctx context.Context, actorUserID int64, u *data.User) error {
	if err := s.Users.Create(ctx, u); err != nil {
		s.audit(ctx, actorUserID, "user.create", "failure", err.Error())
		return err
	}
	if err := s.Permissions.ProvisionForNewUser(ctx, u.ID); err != nil {
		s.audit(ctx, actorUserID, "user.create", "failure", err.Error())
		return err
	}
	s.audit(ctx, actorUserID, "user.create", "success", u.Username)
	return nil
}

func (s *Service) DeleteUser(ctx context.Context, actorUserID, userID int64) error {
	if err := s.Users.Delete(ctx, userID); err != nil {
		s.audit(ctx, actorUserID, "user.delete", "failure", err.Error())
		return err
	}
	s.audit(ctx, actorUserID, "user.delete", "success", "")
	return nil
}

// PurgeAuditLog removes audit_logs rows older than the 7-year compliance
// floor. requestedYears is the caller's stated retention period; it is
// validated against that floor before anything is deleted.
func (s *Service) PurgeAuditLog(ctx context.Context, actorUserID int64, requestedYears int) (int64, error) {
	n, err := s.Audit.PurgeOlderThan(ctx, actorUserID, requestedYears)
	if err != nil {
		s.audit(ctx, actorUserID, "audit.purge", "failure", err.Error())
		return 0, err
	}
	return n, nil
}

func (s *Service) ListAccessibleCameras(ctx context.Context, userID int64) ([]*data.Camera, error) {
	ids, err := s.Permissions.EntitledCameraIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	idList := make([]int64, 0, len(ids))
	for id := range ids {
		idList = append(idList, id)
	}
	return s.Cameras.ListByIDs(ctx, idList)
}
