package domain

import "time"

// UserQuota is the per-user rolling quota state. The cycle is anchored to the
// user's own registration date and advanced by whole calendar months, so
// NextResetAt is not aligned to any global calendar boundary. A nil
// NextResetAt means the user is immediately due for a rollover.
type UserQuota struct {
	OwnerID     string     `json:"owner_id" db:"owner_id"`
	UsedBytes   int64      `json:"used_bytes" db:"used_bytes"`
	MaxBytes    int64      `json:"max_bytes" db:"max_bytes"`
	NextResetAt *time.Time `json:"next_reset_at,omitempty" db:"next_reset_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type QuotaInfo struct {
	TotalSpace     int64      `json:"total_space"`
	UsedSpace      int64      `json:"used_space"`
	AvailableSpace int64      `json:"available_space"`
	UsagePercent   float64    `json:"usage_percent"`
	NextResetAt    *time.Time `json:"next_reset_at,omitempty"`
}

// DailyUsage is one row of the daily report: bytes a user added on a given
// day, joined with the username for display.
type DailyUsage struct {
	Username   string `json:"username" db:"username"`
	BytesAdded int64  `json:"bytes_added" db:"bytes_added"`
}
