// Package credential implements the Credential Store (C1): key issuance,
// validation, per-window rate limiting and revocation, grounded on the
// gorm model + Store pattern of
// api/assistant-api/internal/callcontext/{types,store}.go.
package credential

import (
	"strings"
	"time"
)

// Credential is the persisted identity for a client (spec.md §3). The
// plaintext key value is never stored — only KeyDigest, a sha256 hex
// digest, is persisted, enforcing "key secrecy" (spec.md §8).
type Credential struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	KeyID         string    `gorm:"column:key_id;type:varchar(40);uniqueIndex;not null" json:"keyId"`
	KeyDigest     string    `gorm:"column:key_digest;type:varchar(64);uniqueIndex;not null" json:"-"`
	AccountID     string    `gorm:"column:account_id;type:varchar(40);not null;index" json:"accountId"`
	ClientName    string    `gorm:"column:client_name;type:varchar(200);not null" json:"clientName"`
	Email         string    `gorm:"column:email;type:varchar(320);not null" json:"email"`
	Website       string    `gorm:"column:website;type:varchar(500)" json:"website"`
	PhoneNumber   string    `gorm:"column:phone_number;type:varchar(32)" json:"phoneNumber"`
	Description   string    `gorm:"column:description;type:text" json:"description"`
	Active        bool      `gorm:"column:active;not null;default:true" json:"active"`
	Permissions   string    `gorm:"column:permissions;type:varchar(500);not null" json:"-"`
	PerHourLimit  int       `gorm:"column:per_hour_limit;not null" json:"perHourLimit"`
	PerDayLimit   int       `gorm:"column:per_day_limit;not null" json:"perDayLimit"`
	PerMonthLimit int       `gorm:"column:per_month_limit;not null" json:"perMonthLimit"`
	CreatedAt     time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP;<-:create" json:"createdAt"`
	LastSeenAt    *time.Time `gorm:"column:last_seen_at" json:"lastSeenAt,omitempty"`
}

func (Credential) TableName() string { return "credentials" }

// PermissionList splits the stored comma-separated permission tags.
func (c *Credential) PermissionList() []string {
	if c.Permissions == "" {
		return nil
	}
	return strings.Split(c.Permissions, ",")
}

// DefaultPermissions is the permission set granted at issuance
// (spec.md §4.1).
const DefaultPermissions = "call,recordings,read"

// UsageCounter is the per-credential triple of window counters
// (spec.md §3). Window identifiers are strings so hour/day/month all use
// the same rollover comparison regardless of calendar granularity.
type UsageCounter struct {
	CredentialID uint64 `gorm:"column:credential_id;primaryKey"`
	HourCount    int    `gorm:"column:hour_count;not null;default:0"`
	HourWindow   string `gorm:"column:hour_window;type:varchar(16);not null;default:''"`
	DayCount     int    `gorm:"column:day_count;not null;default:0"`
	DayWindow    string `gorm:"column:day_window;type:varchar(16);not null;default:''"`
	MonthCount   int    `gorm:"column:month_count;not null;default:0"`
	MonthWindow  string `gorm:"column:month_window;type:varchar(16);not null;default:''"`
}

func (UsageCounter) TableName() string { return "usage_counters" }

// Window identifiers for now, read in now's own location (callers pass
// the instant already converted to the configured zone), per spec.md §4.1's
// "window identifier it was last reset in" (hour number / civil date /
// civil month).
func windowIdentifiers(now time.Time) (hour, day, month string) {
	hour = now.Format("2006010215")
	day = now.Format("2006-01-02")
	month = now.Format("2006-01")
	return
}

// EffectiveCounts returns the counts that would apply for "now" without
// mutating the counter, i.e. as if rollover had already happened. Used by
// Validate for a read-only rate-limit check (spec.md §4.1 algorithm).
func (u UsageCounter) EffectiveCounts(now time.Time) (hourCount, dayCount, monthCount int) {
	hourWindow, dayWindow, monthWindow := windowIdentifiers(now)
	if u.HourWindow == hourWindow {
		hourCount = u.HourCount
	}
	if u.DayWindow == dayWindow {
		dayCount = u.DayCount
	}
	if u.MonthWindow == monthWindow {
		monthCount = u.MonthCount
	}
	return
}
