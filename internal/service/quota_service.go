package service

import (
	"context"
	"fmt"
	"time"

	"orbitdrive/internal/domain"
)

// QuotaStore is the durable state behind the ledger. Implemented by
// repository.QuotaRepository.
type QuotaStore interface {
	GetQuota(ctx context.Context, ownerID string) (*domain.UserQuota, error)
	CreateQuota(ctx context.Context, ownerID, username string, maxBytes int64, nextReset time.Time) (*domain.UserQuota, error)
	ResetCycle(ctx context.Context, ownerID string, observed *time.Time, nextReset time.Time) (bool, error)
	ApplyUsage(ctx context.Context, ownerID string, deltaBytes int64, day string) error
	UpdateLimit(ctx context.Context, ownerID string, newLimit int64) error
	DailySnapshot(ctx context.Context, day string) ([]domain.DailyUsage, error)
}

// QuotaService enforces the per-user rolling monthly quota and keeps the
// daily usage ledger. Every read or mutation first settles any due cycle
// rollover so stale state is never acted on.
type QuotaService struct {
	store        QuotaStore
	defaultLimit int64
	now          func() time.Time
}

func NewQuotaService(store QuotaStore, defaultLimit int64) *QuotaService {
	return &QuotaService{
		store:        store,
		defaultLimit: defaultLimit,
		now:          time.Now,
	}
}

// Provision registers a user with zero usage and the default cap. The first
// cycle ends one calendar month from now, anchoring all later resets to the
// registration date. Idempotent.
func (s *QuotaService) Provision(ctx context.Context, ownerID, username string) (*domain.UserQuota, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is required")
	}
	return s.store.CreateQuota(ctx, ownerID, username, s.defaultLimit, addCalendarMonth(s.now()))
}

// RolloverIfDue resets usage and advances the reset instant when the current
// cycle has ended. Missed cycles are skipped in one step: the reset instant
// is advanced month by month until it lands in the future. Safe to call any
// number of times; once the instant is in the future it is a no-op.
func (s *QuotaService) RolloverIfDue(ctx context.Context, ownerID string) (*domain.UserQuota, error) {
	quota, err := s.store.GetQuota(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.rollover(ctx, quota)
}

func (s *QuotaService) rollover(ctx context.Context, quota *domain.UserQuota) (*domain.UserQuota, error) {
	for {
		now := s.now()
		if quota.NextResetAt != nil && quota.NextResetAt.After(now) {
			return quota, nil
		}

		next := nextResetAfter(quota.NextResetAt, now)
		won, err := s.store.ResetCycle(ctx, quota.OwnerID, quota.NextResetAt, next)
		if err != nil {
			return nil, err
		}
		if won {
			quota.UsedBytes = 0
			quota.NextResetAt = &next
			return quota, nil
		}

		// Lost the conditional update to a concurrent rollover; re-read and
		// re-evaluate against the fresh state.
		quota, err = s.store.GetQuota(ctx, quota.OwnerID)
		if err != nil {
			return nil, err
		}
	}
}

// CheckCapacity reports whether candidateBytes more would still fit in the
// current cycle. Pure predicate: it mutates nothing, and a later RecordUsage
// may still jointly overshoot with a concurrent upload by at most one file's
// worth. That soft bound is accepted; hard enforcement would fold the check
// into ApplyUsage as a conditional update.
func (s *QuotaService) CheckCapacity(ctx context.Context, ownerID string, candidateBytes int64) (bool, error) {
	quota, err := s.RolloverIfDue(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return quota.UsedBytes+candidateBytes <= quota.MaxBytes, nil
}

// RecordUsage applies deltaBytes to the cycle usage and today's ledger
// entry. Negative deltas (deletes) are applied as-is, without clamping at
// zero, so a delete exactly reverses the matching upload even across a cycle
// reset.
func (s *QuotaService) RecordUsage(ctx context.Context, ownerID string, deltaBytes int64) error {
	if _, err := s.RolloverIfDue(ctx, ownerID); err != nil {
		return err
	}
	return s.store.ApplyUsage(ctx, ownerID, deltaBytes, s.today())
}

func (s *QuotaService) GetQuotaInfo(ctx context.Context, ownerID string) (*domain.QuotaInfo, error) {
	quota, err := s.RolloverIfDue(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	availableSpace := quota.MaxBytes - quota.UsedBytes
	// A zero cap is legal (admins use it to freeze uploads); the percentage
	// must not become Inf/NaN, which JSON cannot encode.
	usagePercent := 0.0
	if quota.MaxBytes > 0 {
		usagePercent = float64(quota.UsedBytes) / float64(quota.MaxBytes) * 100
	}

	return &domain.QuotaInfo{
		TotalSpace:     quota.MaxBytes,
		UsedSpace:      quota.UsedBytes,
		AvailableSpace: availableSpace,
		UsagePercent:   usagePercent,
		NextResetAt:    quota.NextResetAt,
	}, nil
}

func (s *QuotaService) UpdateQuotaLimit(ctx context.Context, ownerID string, newLimit int64) error {
	if newLimit < 0 {
		return fmt.Errorf("new quota limit cannot be negative")
	}
	return s.store.UpdateLimit(ctx, ownerID, newLimit)
}

// DailySnapshot returns who added bytes on the given day, descending.
func (s *QuotaService) DailySnapshot(ctx context.Context, day time.Time) ([]domain.DailyUsage, error) {
	return s.store.DailySnapshot(ctx, day.UTC().Format("2006-01-02"))
}

func (s *QuotaService) today() string {
	return s.now().UTC().Format("2006-01-02")
}

// nextResetAfter finds the first month-step strictly after now. A user with
// no reset instant at all starts a fresh cycle from now.
func nextResetAfter(prev *time.Time, now time.Time) time.Time {
	next := now
	if prev != nil {
		next = *prev
	}
	for !next.After(now) {
		next = addCalendarMonth(next)
	}
	return next
}

// addCalendarMonth advances t by one calendar month, clamping the day to the
// last valid day of the target month (Jan 31 -> Feb 28/29, never Mar 2/3).
// Time of day is preserved.
func addCalendarMonth(t time.Time) time.Time {
	year, month, day := t.Date()
	month++
	if month > time.December {
		month = time.January
		year++
	}
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysInMonth exploits Date's normalization: day 0 of the next month is the
// last day of this one.
func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
