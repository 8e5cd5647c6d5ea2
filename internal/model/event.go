package model

import (
	"time"
)

type Event struct {
	ID                  string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name                string    `gorm:"type:varchar(128);not null" json:"name"`
	Date                string    `gorm:"type:varchar(64)" json:"date"`
	Location            string    `gorm:"type:varchar(128)" json:"location,omitempty"`
	Description         string    `gorm:"type:varchar(512)" json:"description,omitempty"`
	Category            string    `gorm:"type:varchar(32)" json:"category,omitempty"`
	Fee                 int64     `gorm:"not null;default:0" json:"price"`
	RegisteredAttendees int64     `gorm:"not null;default:0" json:"registered_attendees"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"-"`
}

func (Event) TableName() string {
	return "event"
}

const (
	RegistrationStatusRegistered   = "registered"
	RegistrationStatusParticipated = "participated"
	RegistrationStatusCancelled    = "cancelled"
)

// ValidRegistrationTransitions is driven by administrative action only.
var ValidRegistrationTransitions = map[string][]string{
	RegistrationStatusRegistered: {RegistrationStatusParticipated, RegistrationStatusCancelled},
}

func CanRegistrationTransitionTo(currentStatus, targetStatus string) bool {
	for _, s := range ValidRegistrationTransitions[currentStatus] {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// EventRegistration links a user to an event. At most one non-cancelled
// registration exists per (user, event); ActiveKey enforces that in the
// schema and is cleared on cancellation.
type EventRegistration struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	RegistrationNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"id"`
	UserID         string    `gorm:"type:varchar(64);index:idx_registration_user_event;not null" json:"user_id"`
	EventID        string    `gorm:"type:varchar(64);index:idx_registration_user_event;not null" json:"event_id"`
	EventName      string    `gorm:"type:varchar(128)" json:"event_name"`
	Status         string    `gorm:"type:varchar(16);not null" json:"status"`
	ActiveKey      *string   `gorm:"type:varchar(160);uniqueIndex" json:"-"`
	PaymentAmount  *int64    `json:"payment_amount,omitempty"`
	TransactionNo  string    `gorm:"type:varchar(64)" json:"transaction_id,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"registered_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (EventRegistration) TableName() string {
	return "event_registration"
}

// ActiveRegistrationKey is the ActiveKey of a non-cancelled registration.
func ActiveRegistrationKey(userID, eventID string) string {
	return userID + "|" + eventID
}
