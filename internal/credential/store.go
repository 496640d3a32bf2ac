package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/apperrors"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/clock"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/config"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/connectors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// keyPrefix is the fixed, human-recognisable prefix spec.md §4.1 calls for
// ("rendered as a fixed-prefix hex string so humans can recognise it").
const keyPrefix = "sk_live_"

// UsageKind enumerates what IncrementUsage is counting. Only "call" is used
// today but the type keeps the call site self-documenting.
type UsageKind string

const CallUsage UsageKind = "call"

// Issued is returned exactly once at issuance time (spec.md §4.1); the
// plaintext Key never reappears after this call returns.
type Issued struct {
	Key         string
	KeyID       string
	AccountID   string
	Permissions []string
	Limits      Limits
	CreatedAt   time.Time
}

// Limits is the per-window rate limit triple (spec.md §3).
type Limits struct {
	PerHour  int
	PerDay   int
	PerMonth int
}

// Validated is what Validate returns on success (spec.md §4.1).
type Validated struct {
	KeyID       string
	AccountID   string
	Permissions []string
	Limits      Limits
}

// Store is the Credential Store contract (C1).
type Store interface {
	Issue(ctx context.Context, clientName, email, website, phoneNumber, description string) (*Issued, error)
	Validate(ctx context.Context, keyValue string) (*Validated, error)
	IncrementUsage(ctx context.Context, keyID string, kind UsageKind) error
	Revoke(ctx context.Context, keyID string) error
	GetUsage(ctx context.Context, keyID string) (*UsageSnapshot, error)
}

// UsageSnapshot is the rolling usage-counter view GET /stats exposes
// alongside the credential's configured limits (spec.md §6, "rolling
// usage-counter snapshot").
type UsageSnapshot struct {
	HourCount  int `json:"hourCount"`
	DayCount   int `json:"dayCount"`
	MonthCount int `json:"monthCount"`
	Limits     Limits `json:"limits"`
}

type store struct {
	cfg      *config.AppConfig
	logger   commons.Logger
	postgres connectors.PostgresConnector
	clock    clock.Clock
	location *time.Location
}

// NewStore builds the Credential Store backed by Postgres, grounded on
// internal_callcontext.NewStore's constructor shape.
func NewStore(cfg *config.AppConfig, logger commons.Logger, postgres connectors.PostgresConnector, clk clock.Clock) (Store, error) {
	loc, err := time.LoadLocation(cfg.ClockZone)
	if err != nil {
		loc = time.UTC
	}
	if err := postgres.AutoMigrate(&Credential{}, &UsageCounter{}); err != nil {
		return nil, fmt.Errorf("migrate credential schema: %w", err)
	}
	return &store{cfg: cfg, logger: logger, postgres: postgres, clock: clk, location: loc}, nil
}

var websiteRe = regexp.MustCompile(`^https?://[^\s]+\.[^\s]{2,}$`)
var phoneRe = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

func (s *store) Issue(ctx context.Context, clientName, email, website, phoneNumber, description string) (*Issued, error) {
	if strings.TrimSpace(clientName) == "" {
		return nil, apperrors.New(apperrors.InvalidInput, "clientName is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.New(apperrors.InvalidInput, "malformed email")
	}
	if website != "" && !websiteRe.MatchString(website) {
		return nil, apperrors.New(apperrors.InvalidInput, "malformed website")
	}
	if phoneNumber != "" && !phoneRe.MatchString(phoneNumber) {
		return nil, apperrors.New(apperrors.InvalidInput, "malformed phone number")
	}

	domain := emailDomain(email)
	if len(s.cfg.BlockedEmailDomains) > 0 && containsFold(s.cfg.BlockedEmailDomains, domain) {
		return nil, apperrors.New(apperrors.InvalidInput, "unauthorized domain").WithDetails(map[string]interface{}{"code": "domain_rejected"})
	}
	if len(s.cfg.AllowedEmailDomains) > 0 && !containsFold(s.cfg.AllowedEmailDomains, domain) {
		return nil, apperrors.New(apperrors.InvalidInput, "unauthorized domain").WithDetails(map[string]interface{}{"code": "domain_rejected"})
	}

	keyValue, err := generateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	digest := digestKey(keyValue)
	keyID := uuid.New().String()
	accountID := uuid.New().String()

	limits := Limits{
		PerHour:  orDefault(s.cfg.Limits.MaxCallsPerHour, 10),
		PerDay:   orDefault(s.cfg.Limits.MaxCallsPerDay, 50),
		PerMonth: orDefault(s.cfg.Limits.MaxCallsPerMonth, 1000),
	}

	rec := &Credential{
		KeyID:         keyID,
		KeyDigest:     digest,
		AccountID:     accountID,
		ClientName:    clientName,
		Email:         email,
		Website:       website,
		PhoneNumber:   phoneNumber,
		Description:   description,
		Active:        true,
		Permissions:   DefaultPermissions,
		PerHourLimit:  limits.PerHour,
		PerDayLimit:   limits.PerDay,
		PerMonthLimit: limits.PerMonth,
	}

	db := s.postgres.DB(ctx)
	if err := db.Create(rec).Error; err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}
	if err := db.Create(&UsageCounter{CredentialID: rec.ID}).Error; err != nil {
		return nil, fmt.Errorf("persist usage counter: %w", err)
	}

	// Never log the plaintext key; only its first 8 characters and the key id
	// (spec.md §4.1).
	s.logger.Infof("issued credential keyId=%s preview=%s account=%s", keyID, keyValue[:8], accountID)

	return &Issued{
		Key:         keyValue,
		KeyID:       keyID,
		AccountID:   accountID,
		Permissions: rec.PermissionList(),
		Limits:      limits,
		CreatedAt:   s.clock.Now(),
	}, nil
}

func (s *store) Validate(ctx context.Context, keyValue string) (*Validated, error) {
	digest := digestKey(keyValue)
	db := s.postgres.DB(ctx)

	var rec Credential
	err := db.Where("key_digest = ?", digest).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil, apperrors.New(apperrors.AuthInvalid, "unknown credential")
	}
	if err != nil {
		return nil, apperrors.New(apperrors.Internal, "transient failure resolving credential").WithDetails(map[string]interface{}{"code": "transient_unavailable"})
	}
	if !rec.Active {
		return nil, apperrors.New(apperrors.AuthInvalid, "credential has been revoked")
	}

	var counter UsageCounter
	if err := db.Where("credential_id = ?", rec.ID).First(&counter).Error; err != nil {
		return nil, apperrors.New(apperrors.Internal, "transient failure resolving usage").WithDetails(map[string]interface{}{"code": "transient_unavailable"})
	}

	now := s.clock.Now().In(s.location)
	hourCount, dayCount, monthCount := counter.EffectiveCounts(now)
	if rec.PerHourLimit > 0 && hourCount >= rec.PerHourLimit {
		return nil, apperrors.RateLimitedWindow("hour", secondsUntilNextHour(now))
	}
	if rec.PerDayLimit > 0 && dayCount >= rec.PerDayLimit {
		return nil, apperrors.RateLimitedWindow("day", secondsUntilNextDay(now))
	}
	if rec.PerMonthLimit > 0 && monthCount >= rec.PerMonthLimit {
		return nil, apperrors.RateLimitedWindow("month", secondsUntilNextDay(now))
	}

	seen := now
	if err := db.Model(&Credential{}).Where("id = ?", rec.ID).Update("last_seen_at", seen).Error; err != nil {
		s.logger.Warnf("failed to update last_seen for keyId=%s: %v", rec.KeyID, err)
	}

	return &Validated{
		KeyID:       rec.KeyID,
		AccountID:   rec.AccountID,
		Permissions: rec.PermissionList(),
		Limits: Limits{
			PerHour:  rec.PerHourLimit,
			PerDay:   rec.PerDayLimit,
			PerMonth: rec.PerMonthLimit,
		},
	}, nil
}

// IncrementUsage atomically rolls over expired windows and increments the
// three counters, per the spec.md §4.1 window-rollover algorithm. The
// select-for-update + transaction pairing gives atomicity relative to
// concurrent readers (spec.md §3 invariant).
func (s *store) IncrementUsage(ctx context.Context, keyID string, kind UsageKind) error {
	now := s.clock.Now().In(s.location)
	hourWindow, dayWindow, monthWindow := windowIdentifiers(now)

	return s.postgres.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var rec Credential
		if err := tx.Where("key_id = ?", keyID).First(&rec).Error; err != nil {
			return fmt.Errorf("resolve credential %s: %w", keyID, err)
		}

		var counter UsageCounter
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("credential_id = ?", rec.ID).First(&counter).Error; err != nil {
			return fmt.Errorf("lock usage counter %s: %w", keyID, err)
		}

		if counter.HourWindow != hourWindow {
			counter.HourCount = 0
			counter.HourWindow = hourWindow
		}
		if counter.DayWindow != dayWindow {
			counter.DayCount = 0
			counter.DayWindow = dayWindow
		}
		if counter.MonthWindow != monthWindow {
			counter.MonthCount = 0
			counter.MonthWindow = monthWindow
		}

		counter.HourCount++
		counter.DayCount++
		counter.MonthCount++

		return tx.Save(&counter).Error
	})
}

// GetUsage reads the current rolling usage counters for keyID, applying
// the same window-expiry view Validate uses without mutating the stored
// windows (a read is not a rollover).
func (s *store) GetUsage(ctx context.Context, keyID string) (*UsageSnapshot, error) {
	db := s.postgres.DB(ctx)

	var rec Credential
	if err := db.Where("key_id = ?", keyID).First(&rec).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.New(apperrors.NotFound, "unknown credential")
		}
		return nil, fmt.Errorf("resolve credential %s: %w", keyID, err)
	}

	var counter UsageCounter
	if err := db.Where("credential_id = ?", rec.ID).First(&counter).Error; err != nil {
		return nil, fmt.Errorf("resolve usage counter %s: %w", keyID, err)
	}

	now := s.clock.Now().In(s.location)
	hourCount, dayCount, monthCount := counter.EffectiveCounts(now)
	return &UsageSnapshot{
		HourCount:  hourCount,
		DayCount:   dayCount,
		MonthCount: monthCount,
		Limits: Limits{
			PerHour:  rec.PerHourLimit,
			PerDay:   rec.PerDayLimit,
			PerMonth: rec.PerMonthLimit,
		},
	}, nil
}

func (s *store) Revoke(ctx context.Context, keyID string) error {
	db := s.postgres.DB(ctx)
	result := db.Model(&Credential{}).Where("key_id = ?", keyID).Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("revoke credential %s: %w", keyID, result.Error)
	}
	// Idempotent: a second call affects zero rows but is still a success
	// (spec.md §8, "idempotent revocation").
	s.logger.Infof("revoked credential keyId=%s", keyID)
	return nil
}

func generateKey() (string, error) {
	buf := make([]byte, 32) // 256 bits of entropy
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}

func digestKey(keyValue string) string {
	sum := sha256.Sum256([]byte(keyValue))
	return hex.EncodeToString(sum[:])
}

func emailDomain(email string) string {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return ""
	}
	return strings.ToLower(parts[1])
}

func containsFold(list []string, needle string) bool {
	for _, v := range list {
		if strings.EqualFold(v, needle) {
			return true
		}
	}
	return false
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func secondsUntilNextHour(now time.Time) int {
	next := now.Truncate(time.Hour).Add(time.Hour)
	return int(next.Sub(now).Seconds())
}

func secondsUntilNextDay(now time.Time) int {
	y, m, d := now.Date()
	next := time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	return int(next.Sub(now).Seconds())
}
