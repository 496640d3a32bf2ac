package callregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/apperrors"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/clock"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/commons"
	"github.com/PatrickCDun14/Memoora-calls-sub000/internal/connectors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// correlationTTL bounds how long a status callback for an unknown provider
// sid is buffered waiting for AttachProviderSid, per spec.md §4.2.
const correlationTTL = 10 * time.Second

// CreateRequest is the input to Create (spec.md §4.2 "∅ -> initiated").
type CreateRequest struct {
	CredentialKeyID string
	AccountID       string
	CalleeNumber    string
	CallerIdentity  CallerIdentityKind
	Question        string
	Kind            Kind
	Metadata        map[string]string
}

// ListFilters narrows ListByCredential (spec.md §4.2).
type ListFilters struct {
	Status Status
	Limit  int
}

// bufferedUpdate is a status callback staged in Redis because it arrived
// before AttachProviderSid ran (spec.md §4.2 correlation algorithm).
type bufferedUpdate struct {
	NewStatus Status            `json:"newStatus"`
	Metadata  map[string]string `json:"metadata"`
}

// Store is the Call Registry contract (C2).
type Store interface {
	Create(ctx context.Context, req CreateRequest) (*CallRecord, error)
	AttachProviderSid(ctx context.Context, internalID, providerSid string) error
	UpdateStatus(ctx context.Context, providerSid string, newStatus Status, metadata map[string]string) error
	AttachRecording(ctx context.Context, providerSid, recordingRef string) error
	AttachClosing(ctx context.Context, providerSid, closingText string) error
	MarkNotified(ctx context.Context, providerSid string) error
	GetByInternalID(ctx context.Context, internalID string) (*CallRecord, error)
	GetByProviderSid(ctx context.Context, providerSid string) (*CallRecord, error)
	ListByCredential(ctx context.Context, keyID string, filters ListFilters) ([]*CallRecord, error)
}

type store struct {
	logger   commons.Logger
	postgres connectors.PostgresConnector
	redis    connectors.RedisConnector
	clock    clock.Clock
}

// NewStore builds the Call Registry store.
func NewStore(logger commons.Logger, postgres connectors.PostgresConnector, redis connectors.RedisConnector, clk clock.Clock) (Store, error) {
	if err := postgres.AutoMigrate(&CallRecord{}); err != nil {
		return nil, fmt.Errorf("migrate call registry schema: %w", err)
	}
	return &store{logger: logger, postgres: postgres, redis: redis, clock: clk}, nil
}

func (s *store) Create(ctx context.Context, req CreateRequest) (*CallRecord, error) {
	rec := &CallRecord{
		InternalID:      uuid.New().String(),
		CredentialKeyID: req.CredentialKeyID,
		AccountID:       req.AccountID,
		CalleeNumber:    req.CalleeNumber,
		CallerIdentity:  string(req.CallerIdentity),
		Status:          StatusInitiated,
		Question:        req.Question,
		Kind:            req.Kind,
		InitiatedAt:     s.clock.Now(),
	}
	if err := rec.SetMetadata(req.Metadata); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	if err := s.postgres.DB(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("create call record: %w", err)
	}
	s.logger.Infof("created call record internalId=%s callee=%s kind=%s", rec.InternalID, rec.CalleeNumber, rec.Kind)
	return rec, nil
}

// AttachProviderSid sets the provider call id exactly once (spec.md §3
// invariant: "provider call id, once set, is immutable"), then applies
// any buffered status update staged for this sid while the write was in
// flight (spec.md §4.2 correlation algorithm).
func (s *store) AttachProviderSid(ctx context.Context, internalID, providerSid string) error {
	db := s.postgres.DB(ctx)
	result := db.Model(&CallRecord{}).
		Where("internal_id = ? AND provider_sid = ?", internalID, "").
		Update("provider_sid", providerSid)
	if result.Error != nil {
		return fmt.Errorf("attach provider sid to %s: %w", internalID, result.Error)
	}
	if result.RowsAffected == 0 {
		s.logger.Warnf("provider sid already attached or call not found: internalId=%s", internalID)
	}

	key := correlationKey(providerSid)
	raw, err := s.redis.Get(ctx, key)
	if err != nil {
		return nil
	}
	var buffered bufferedUpdate
	if err := json.Unmarshal([]byte(raw), &buffered); err != nil {
		s.logger.Warnf("discarding unreadable buffered update for providerSid=%s", providerSid)
		return nil
	}
	_ = s.redis.Del(ctx, key)
	s.logger.Infof("applying buffered status update providerSid=%s status=%s", providerSid, buffered.NewStatus)
	return s.UpdateStatus(ctx, providerSid, buffered.NewStatus, buffered.Metadata)
}

// UpdateStatus validates and applies a provider status callback. Illegal
// transitions are logged and dropped, not surfaced as an error, because
// they originate from the provider (spec.md §7 propagation policy).
func (s *store) UpdateStatus(ctx context.Context, providerSid string, newStatus Status, metadata map[string]string) error {
	rec, err := s.GetByProviderSid(ctx, providerSid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || isNotFound(err) {
			return s.bufferStatusUpdate(ctx, providerSid, newStatus, metadata)
		}
		return err
	}

	if !CanTransition(rec.Status, newStatus) {
		s.logger.Warnf("dropping illegal transition for providerSid=%s: %s -> %s", providerSid, rec.Status, newStatus)
		return nil
	}

	updates := map[string]interface{}{"status": newStatus}
	now := s.clock.Now()
	switch newStatus {
	case StatusAnswered:
		updates["answered_at"] = now
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled:
		updates["completed_at"] = now
	}

	if len(metadata) > 0 {
		if err := rec.MergeMetadata(metadata); err != nil {
			return fmt.Errorf("merge metadata: %w", err)
		}
		updates["metadata_json"] = rec.MetadataJSON
	}

	result := s.postgres.DB(ctx).Model(&CallRecord{}).
		Where("provider_sid = ? AND status = ?", providerSid, rec.Status).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("update status for %s: %w", providerSid, result.Error)
	}
	if result.RowsAffected == 0 {
		s.logger.Warnf("status update raced and lost for providerSid=%s: expected %s", providerSid, rec.Status)
	}
	return nil
}

func (s *store) bufferStatusUpdate(ctx context.Context, providerSid string, newStatus Status, metadata map[string]string) error {
	payload, err := json.Marshal(bufferedUpdate{NewStatus: newStatus, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("encode buffered update: %w", err)
	}
	if err := s.redis.SetWithTTL(ctx, correlationKey(providerSid), string(payload), correlationTTL); err != nil {
		return fmt.Errorf("buffer status update for unknown providerSid=%s: %w", providerSid, err)
	}
	s.logger.Warnf("buffering status update for unknown providerSid=%s status=%s ttl=%s", providerSid, newStatus, correlationTTL)
	return nil
}

func (s *store) AttachRecording(ctx context.Context, providerSid, recordingRef string) error {
	result := s.postgres.DB(ctx).Model(&CallRecord{}).
		Where("provider_sid = ? AND recording_ref = ?", providerSid, "").
		Updates(map[string]interface{}{"recording_ref": recordingRef, "recorded": true})
	if result.Error != nil {
		return fmt.Errorf("attach recording for %s: %w", providerSid, result.Error)
	}
	if result.RowsAffected == 0 {
		s.logger.Warnf("recording already attached or call not found: providerSid=%s", providerSid)
	}
	return nil
}

// AttachClosing stamps the Dialog Engine's closing message onto the call
// record's metadata without touching telephony status, so the Prompt
// Webhook Handler can serve the hangup script on the provider's next hit
// (spec.md §4.6 step "trigger notification").
func (s *store) AttachClosing(ctx context.Context, providerSid, closingText string) error {
	rec, err := s.GetByProviderSid(ctx, providerSid)
	if err != nil {
		return err
	}
	if err := rec.MergeMetadata(map[string]string{"closing": "true", "closingText": closingText}); err != nil {
		return fmt.Errorf("merge closing metadata: %w", err)
	}
	return s.postgres.DB(ctx).Model(&CallRecord{}).
		Where("provider_sid = ?", providerSid).
		Update("metadata_json", rec.MetadataJSON).Error
}

func (s *store) MarkNotified(ctx context.Context, providerSid string) error {
	return s.postgres.DB(ctx).Model(&CallRecord{}).
		Where("provider_sid = ?", providerSid).
		Update("notified", true).Error
}

func (s *store) GetByInternalID(ctx context.Context, internalID string) (*CallRecord, error) {
	var rec CallRecord
	if err := s.postgres.DB(ctx).Where("internal_id = ?", internalID).First(&rec).Error; err != nil {
		return nil, apperrors.New(apperrors.NotFound, "call record not found")
	}
	return &rec, nil
}

func (s *store) GetByProviderSid(ctx context.Context, providerSid string) (*CallRecord, error) {
	var rec CallRecord
	if err := s.postgres.DB(ctx).Where("provider_sid = ?", providerSid).First(&rec).Error; err != nil {
		return nil, apperrors.New(apperrors.NotFound, "call record not found")
	}
	return &rec, nil
}

func (s *store) ListByCredential(ctx context.Context, keyID string, filters ListFilters) ([]*CallRecord, error) {
	q := s.postgres.DB(ctx).Where("credential_key_id = ?", keyID)
	if filters.Status != "" {
		q = q.Where("status = ?", filters.Status)
	}
	if filters.Limit > 0 {
		q = q.Limit(filters.Limit)
	}
	q = q.Order("initiated_at DESC")

	var records []*CallRecord
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list call records for %s: %w", keyID, err)
	}
	return records, nil
}

func correlationKey(providerSid string) string {
	return "corr:" + providerSid
}

func isNotFound(err error) bool {
	var appErr *apperrors.Error
	return errors.As(err, &appErr) && appErr.ErrCode == apperrors.NotFound
}
