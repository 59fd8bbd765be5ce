// Package session persists consultation session records. The Gateway view
// is what the real-time coordinator uses; Store is the full CRUD surface
// used by the HTTP API.
package session

import (
	"strings"
	"time"
)

// Session statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusArchived  = "archived"
)

// DefaultSessionType is used when a session is created without a type.
const DefaultSessionType = "consultation"

// Record is a persisted consultation session.
type Record struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	DoctorID      string    `gorm:"size:128;not null;index:idx_sessions_doctor_created,priority:1" json:"doctorId"`
	DoctorName    string    `gorm:"size:255;not null;default:''" json:"doctorName"`
	PatientName   string    `gorm:"size:255;not null" json:"patientName"`
	PatientID     *string   `gorm:"size:128" json:"patientId"`
	SessionType   string    `gorm:"size:64;not null;default:consultation" json:"sessionType"`
	Status        string    `gorm:"size:32;not null;default:active" json:"status"`
	Transcript    string    `gorm:"type:text;not null;default:''" json:"transcript"`
	Entities      JSON      `gorm:"not null" json:"entities"`
	Summary       string    `gorm:"type:text;not null;default:''" json:"summary"`
	ImageAnalysis JSON      `json:"imageAnalysis"`
	CreatedAt     time.Time `gorm:"index:idx_sessions_doctor_created,priority:2,sort:desc" json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (Record) TableName() string { return "sessions" }

// IsOwnedBy reports whether userID is the doctor who owns r.
func IsOwnedBy(r *Record, userID string) bool {
	return r != nil && userID != "" && r.DoctorID == userID
}

// ValidStatus reports whether s is a known session status.
func ValidStatus(s string) bool {
	switch s {
	case StatusActive, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// NewRecord fills the defaults of a freshly created session.
func NewRecord(id, doctorID, doctorName, patientName string, patientID *string, sessionType string) *Record {
	if strings.TrimSpace(sessionType) == "" {
		sessionType = DefaultSessionType
	}
	return &Record{
		ID:          id,
		DoctorID:    doctorID,
		DoctorName:  doctorName,
		PatientName: strings.TrimSpace(patientName),
		PatientID:   patientID,
		SessionType: sessionType,
		Status:      StatusActive,
		Entities:    EmptyList,
	}
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Transcript    *string `json:"transcript"`
	Entities      *JSON   `json:"entities"`
	Summary       *string `json:"summary"`
	ImageAnalysis *JSON   `json:"imageAnalysis"`
	Status        *string `json:"status" validate:"omitempty,oneof=active completed archived"`
}

// Empty reports a patch that changes nothing.
func (p Patch) Empty() bool {
	return p.Transcript == nil && p.Entities == nil && p.Summary == nil && p.ImageAnalysis == nil && p.Status == nil
}

// ListOptions filters and pages a listing.
type ListOptions struct {
	Limit  int
	Offset int
	Status string
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

func (o *ListOptions) normalize() {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}
