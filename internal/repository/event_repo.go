package repository

import (
	"context"
	"errors"

	"ignitia/internal/model"

	"gorm.io/gorm"
)

var (
	ErrEventNotFound             = errors.New("event not found")
	ErrRegistrationStatusInvalid = errors.New("registration status transition not allowed")
	ErrDuplicateRegistration     = errors.New("user already holds an active registration for the event")
)

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) List(ctx context.Context) ([]*model.Event, error) {
	var events []*model.Event
	err := r.db.WithContext(ctx).Order("id ASC").Find(&events).Error
	return events, err
}

// Leaderboard orders events by registered attendees, most popular first.
func (r *EventRepository) Leaderboard(ctx context.Context) ([]*model.Event, error) {
	var events []*model.Event
	err := r.db.WithContext(ctx).
		Order("registered_attendees DESC").
		Order("id ASC").
		Find(&events).Error
	return events, err
}

func (r *EventRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Event, error) {
	if tx == nil {
		tx = r.db
	}
	var event model.Event
	err := tx.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &event, nil
}

func (r *EventRepository) IncrementAttendees(ctx context.Context, tx *gorm.DB, eventID string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Event{}).
		Where("id = ?", eventID).
		UpdateColumn("registered_attendees", gorm.Expr("registered_attendees + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEventNotFound
	}
	return nil
}

// GetActiveRegistration returns the non-cancelled registration of userID for
// eventID, or nil when there is none.
func (r *EventRepository) GetActiveRegistration(ctx context.Context, tx *gorm.DB, userID, eventID string) (*model.EventRegistration, error) {
	if tx == nil {
		tx = r.db
	}
	var reg model.EventRegistration
	err := tx.WithContext(ctx).
		Where("user_id = ? AND event_id = ? AND status <> ?", userID, eventID, model.RegistrationStatusCancelled).
		First(&reg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &reg, nil
}

// CreateRegistration inserts reg. A second active registration for the same
// user and event violates the active_key index and yields
// ErrDuplicateRegistration.
func (r *EventRepository) CreateRegistration(ctx context.Context, tx *gorm.DB, reg *model.EventRegistration) error {
	if tx == nil {
		tx = r.db
	}
	if reg.Status != model.RegistrationStatusCancelled {
		key := model.ActiveRegistrationKey(reg.UserID, reg.EventID)
		reg.ActiveKey = &key
	}
	err := tx.WithContext(ctx).Create(reg).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateRegistration
	}
	return err
}

func (r *EventRepository) ListRegistrations(ctx context.Context, userID string) ([]*model.EventRegistration, error) {
	var regs []*model.EventRegistration
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&regs).Error
	return regs, err
}

// UpdateRegistrationStatus moves a registration from fromStatus to toStatus.
// Cancelling releases the active_key so the user may register again.
func (r *EventRepository) UpdateRegistrationStatus(ctx context.Context, tx *gorm.DB, registrationNo, fromStatus, toStatus string) error {
	if !model.CanRegistrationTransitionTo(fromStatus, toStatus) {
		return ErrRegistrationStatusInvalid
	}
	if tx == nil {
		tx = r.db
	}
	updates := map[string]interface{}{"status": toStatus}
	if toStatus == model.RegistrationStatusCancelled {
		updates["active_key"] = nil
	}
	result := tx.WithContext(ctx).
		Model(&model.EventRegistration{}).
		Where("registration_no = ? AND status = ?", registrationNo, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRegistrationStatusInvalid
	}
	return nil
}
