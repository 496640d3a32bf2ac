// Package callregistry implements the Call Registry (C2): the canonical
// record of every outbound call, correlated by provider call id. Grounded
// on the gorm Store pattern of
// api/assistant-api/internal/callcontext/{types,store}.go — atomic
// conditional Updates, status as a narrow string enum, a secondary index
// for provider-id lookups.
package callregistry

import (
	"encoding/json"
	"time"
)

// Status is one of the call-lifecycle states of spec.md §4.2.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusRinging   Status = "ringing"
	StatusAnswered  Status = "answered"
	StatusInProgress Status = "in-progress"
	StatusCompleted Status = "completed"
	StatusBusy      Status = "busy"
	StatusNoAnswer  Status = "no-answer"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Kind is the call kind of spec.md §3.
type Kind string

const (
	KindBasic       Kind = "basic"
	KindInteractive Kind = "interactive"
)

// CallerIdentityKind distinguishes the two CallerIdentity variants of
// spec.md §3.
type CallerIdentityKind string

const (
	CallerIdentityPhoneNumber CallerIdentityKind = "phone_number"
	CallerIdentityAlphaLabel  CallerIdentityKind = "alpha_label"
)

// CallerIdentity is either a PhoneNumber(e164) or an AlphaLabel(text<=11
// chars), with a mandatory PhoneNumber fallback (spec.md §3).
type CallerIdentity struct {
	Kind          CallerIdentityKind
	Value         string
	FallbackPhone string
}

// CallRecord is the persisted, canonical record of one outbound call
// (spec.md §3).
type CallRecord struct {
	InternalID      string     `gorm:"column:internal_id;type:varchar(36);primaryKey" json:"callId"`
	ProviderSid     string     `gorm:"column:provider_sid;type:varchar(64);uniqueIndex" json:"twilioSid,omitempty"`
	CredentialKeyID string     `gorm:"column:credential_key_id;type:varchar(40);not null;index" json:"-"`
	AccountID       string     `gorm:"column:account_id;type:varchar(40);not null;index" json:"-"`
	CalleeNumber    string     `gorm:"column:callee_number;type:varchar(32);not null" json:"to"`
	CallerIdentity  string     `gorm:"column:caller_identity;type:varchar(32);not null" json:"-"`
	Status          Status     `gorm:"column:status;type:varchar(20);not null" json:"status"`
	Recorded        bool       `gorm:"column:recorded;not null;default:false" json:"recorded"`
	Notified        bool       `gorm:"column:notified;not null;default:false" json:"notified"`
	InitiatedAt     time.Time  `gorm:"column:initiated_at;not null;<-:create" json:"initiatedAt"`
	AnsweredAt      *time.Time `gorm:"column:answered_at" json:"answeredAt,omitempty"`
	CompletedAt     *time.Time `gorm:"column:completed_at" json:"completedAt,omitempty"`
	DurationSeconds *int       `gorm:"column:duration_seconds" json:"durationSeconds,omitempty"`
	RecordingRef    string     `gorm:"column:recording_ref;type:varchar(200)" json:"recordingRef,omitempty"`
	Question        string     `gorm:"column:question;type:text" json:"question,omitempty"`
	Kind            Kind       `gorm:"column:kind;type:varchar(16);not null" json:"callType"`
	MetadataJSON    string     `gorm:"column:metadata_json;type:text" json:"-"`
}

func (CallRecord) TableName() string { return "call_records" }

// Metadata unmarshals the free-form metadata map (spec.md §3).
func (c *CallRecord) Metadata() map[string]string {
	if c.MetadataJSON == "" {
		return map[string]string{}
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(c.MetadataJSON), &m); err != nil {
		return map[string]string{}
	}
	return m
}

// SetMetadata replaces the metadata map, re-serialising it to JSON.
func (c *CallRecord) SetMetadata(m map[string]string) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	c.MetadataJSON = string(b)
	return nil
}

// MergeMetadata sets additional keys onto the existing metadata map.
func (c *CallRecord) MergeMetadata(extra map[string]string) error {
	m := c.Metadata()
	for k, v := range extra {
		m[k] = v
	}
	return c.SetMetadata(m)
}
