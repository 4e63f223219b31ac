package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const MinRetentionYears = 7
const DaysinYear = 365.25 // Approx for leap years

// ErrRetentionTooShort is returned by CheckRetentionPolicy/PurgeOlderThan
// when the caller asks for less than MinRetentionYears.
var ErrRetentionTooShort = errors.New("retention must be at least the compliance floor")

// CheckRetentionPolicy rejects any purge request shorter than the
// compliance floor.
func CheckRetentionPolicy(requestedYears int) error {
	if requestedYears < MinRetentionYears {
		return fmt.Errorf("%w: minimum %d years (requested: %d)", ErrRetentionTooShort, MinRetentionYears, requestedYears)
	}
	return nil
}

// EnsureSafePurgeDate calculates the SAFEST date that can be purged.
// Any row AFTER this result CANNOT be touched, regardless of what a caller
// requests: 2557 days is the 7-year floor rounded up for leap years.
func EnsureSafePurgeDate() time.Time {
	const days = 2557
	return time.Now().AddDate(0, 0, -days)
}

// CanPurge checks if a timestamp is eligible for purging.
func CanPurge(recordTime time.Time) bool {
	return recordTime.Before(EnsureSafePurgeDate())
}

// PurgeOlderThan deletes every audit_logs row older than the 7-year safe
// purge date, rejecting requestedYears below MinRetentionYears before
// touching the table. It writes its own audit event, so a purge is itself
// part of the trail it thins out.
func (s *Service) PurgeOlderThan(ctx context.Context, actorUserID int64, requestedYears int) (int64, error) {
	if err := CheckRetentionPolicy(requestedYears); err != nil {
		return 0, err
	}

	cutoff := EnsureSafePurgeDate()
	if !CanPurge(cutoff) {
		return 0, fmt.Errorf("audit: refusing to purge, computed cutoff %s is not safe", cutoff)
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: purge failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	s.WriteEvent(ctx, AuditEvent{
		ActorUserID: actorUserID,
		Action:      "audit.purge",
		Result:      "success",
		Detail:      fmt.Sprintf("purged %d rows older than %s", n, cutoff.Format(time.RFC3339)),
	})
	return n, nil
}
