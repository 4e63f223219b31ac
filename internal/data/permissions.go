package data

import (
	"context"
	"database/sql"
)

// CameraPermission is at most one row per (camera_id, user_id).
type CameraPermission struct {
	ID         int64 `json:"permission_id"`
	CameraID   int64 `json:"camera_id"`
	UserID     int64 `json:"user_id"`
	CanView    bool  `json:"can_view"`
	CanControl bool  `json:"can_control"`
}

type PermissionModel struct {
	DB DBTX
}

// Grant upserts the (camera_id, user_id) permission row.
func (m PermissionModel) Grant(ctx context.Context, p *CameraPermission) error {
	query := `
		INSERT INTO camera_permissions (camera_id, user_id, can_view, can_control)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (camera_id, user_id)
		DO UPDATE SET can_view = EXCLUDED.can_view, can_control = EXCLUDED.can_control
		RETURNING id`
	return m.DB.QueryRowContext(ctx, query, p.CameraID, p.UserID, p.CanView, p.CanControl).Scan(&p.ID)
}

func (m PermissionModel) GetByID(ctx context.Context, id int64) (*CameraPermission, error) {
	query := `SELECT id, camera_id, user_id, can_view, can_control FROM camera_permissions WHERE id = $1`
	var p CameraPermission
	err := m.DB.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.CameraID, &p.UserID, &p.CanView, &p.CanControl)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update changes can_view/can_control on an existing row, identified by its
// permission_id (as addressed by PATCH /api/permissions/{id}).
func (m PermissionModel) Update(ctx context.Context, id int64, canView, canControl bool) (*CameraPermission, error) {
	query := `
		UPDATE camera_permissions SET can_view = $1, can_control = $2
		WHERE id = $3
		RETURNING id, camera_id, user_id, can_view, can_control`
	var p CameraPermission
	err := m.DB.QueryRowContext(ctx, query, canView, canControl, id).
		Scan(&p.ID, &p.CameraID, &p.UserID, &p.CanView, &p.CanControl)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (m PermissionModel) ListByCamera(ctx context.Context, cameraID int64) ([]*CameraPermission, error) {
	query := `SELECT id, camera_id, user_id, can_view, can_control FROM camera_permissions WHERE camera_id = $1`
	rows, err := m.DB.QueryContext(ctx, query, cameraID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CameraPermission
	for rows.Next() {
		var p CameraPermission
		if err := rows.Scan(&p.ID, &p.CameraID, &p.UserID, &p.CanView, &p.CanControl); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// EntitledCameraIDs returns the camera_id set visible to userID: can_view=true
// and the camera itself is active. Backs both the accessible-cameras HTTP
// endpoint and the in-process EntitlementSnapshot refresh.
func (m PermissionModel) EntitledCameraIDs(ctx context.Context, userID int64) (map[int64]struct{}, error) {
	query := `
		SELECT p.camera_id
		FROM camera_permissions p
		JOIN cameras c ON c.id = p.camera_id
		WHERE p.user_id = $1 AND p.can_view = true AND c.is_active = true`
	rows, err := m.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

// CanControl reports whether userID has can_control on cameraID.
func (m PermissionModel) CanControl(ctx context.Context, cameraID, userID int64) (bool, error) {
	query := `SELECT can_control FROM camera_permissions WHERE camera_id = $1 AND user_id = $2`
	var can bool
	err := m.DB.QueryRowContext(ctx, query, cameraID, userID).Scan(&can)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return can, nil
}

// ProvisionForNewCamera grants the admin full control and zeroes out every
// other existing user's row for a just-created camera.
func (m PermissionModel) ProvisionForNewCamera(ctx context.Context, cameraID, adminUserID int64) error {
	if _, err := m.DB.ExecContext(ctx, `
		INSERT INTO camera_permissions (camera_id, user_id, can_view, can_control)
		VALUES ($1, $2, true, true)
		ON CONFLICT (camera_id, user_id) DO UPDATE SET can_view = true, can_control = true
	`, cameraID, adminUserID); err != nil {
		return err
	}

	_, err := m.DB.ExecContext(ctx, `
		INSERT INTO camera_permissions (camera_id, user_id, can_view, can_control)
		SELECT $1, u.id, false, false FROM users u WHERE u.id != $2
		ON CONFLICT (camera_id, user_id) DO NOTHING
	`, cameraID, adminUserID)
	return err
}

// ProvisionForNewUser zeroes out a permission row against every existing
// camera for a just-created user.
func (m PermissionModel) ProvisionForNewUser(ctx context.Context, userID int64) error {
	_, err := m.DB.ExecContext(ctx, `
		INSERT INTO camera_permissions (camera_id, user_id, can_view, can_control)
		SELECT c.id, $1, false, false FROM cameras c
		ON CONFLICT (camera_id, user_id) DO NOTHING
	`, userID)
	return err
}
