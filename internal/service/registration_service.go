package service

import (
	"context"
	"errors"

	"ignitia/internal/config"
	"ignitia/internal/infrastructure/lock"
	"ignitia/internal/model"
	"ignitia/internal/repository"
	"ignitia/pkg/apperr"
	"ignitia/pkg/idgen"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	EventRegistrationCreated = "registration.created"
	EventRegistrationUpdated = "registration.status_changed"
)

type RegistrationService struct {
	db         *gorm.DB
	cfg        *config.Config
	eventRepo  *repository.EventRepository
	outboxRepo *repository.OutboxRepository
	wallet     *WalletService
	locker     lock.Locker
}

func NewRegistrationService(db *gorm.DB, cfg *config.Config, eventRepo *repository.EventRepository, outboxRepo *repository.OutboxRepository,
	wallet *WalletService, locker lock.Locker) *RegistrationService {
	return &RegistrationService{
		db:         db,
		cfg:        cfg,
		eventRepo:  eventRepo,
		outboxRepo: outboxRepo,
		wallet:     wallet,
		locker:     locker,
	}
}

type RegistrationResult struct {
	Registration      *model.EventRegistration `json:"registration"`
	AlreadyRegistered bool                     `json:"already_registered"`
	Transaction       *model.WalletTransaction `json:"transaction,omitempty"`
}

func RegistrationDescription(event *model.Event) string {
	return "Event registration: " + event.Name
}

// Register signs userID up for eventID, charging the fee from the wallet.
// The charge, the registration row and the attendee counter commit together;
// a repeated call returns the existing registration without charging again.
func (s *RegistrationService) Register(ctx context.Context, userID, eventID string) (*RegistrationResult, error) {
	if userID == "" {
		return nil, apperr.New(apperr.CodeValidation, "user id is required")
	}
	event, err := s.eventRepo.GetByID(ctx, nil, eventID)
	if err != nil {
		return nil, translate(err, "get event")
	}

	unlocker, err := s.locker.Obtain(ctx, lock.RegistrationLockKey(userID, eventID), userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeConflict, err, "registration is being processed, retry later")
	}
	defer func() {
		if err := unlocker.Unlock(context.WithoutCancel(ctx)); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("component", "registration").Msg("release registration lock")
		}
	}()

	result := &RegistrationResult{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.eventRepo.GetActiveRegistration(ctx, tx, userID, eventID)
		if err != nil {
			return err
		}
		if existing != nil {
			result.Registration = existing
			result.AlreadyRegistered = true
			return nil
		}

		reg := &model.EventRegistration{
			RegistrationNo: idgen.RegistrationNo(),
			UserID:         userID,
			EventID:        event.ID,
			EventName:      event.Name,
			Status:         model.RegistrationStatusRegistered,
		}
		if event.Fee > 0 {
			txn, err := s.wallet.apply(ctx, tx, model.LedgerEntry{
				UserID:      userID,
				Type:        model.TransactionTypeDebit,
				Amount:      event.Fee,
				Description: RegistrationDescription(event),
				Reference:   reg.RegistrationNo,
			})
			if err != nil {
				return err
			}
			fee := event.Fee
			reg.PaymentAmount = &fee
			reg.TransactionNo = txn.TransactionNo
			result.Transaction = txn
		}

		if err := s.eventRepo.CreateRegistration(ctx, tx, reg); err != nil {
			return err
		}
		if err := s.eventRepo.IncrementAttendees(ctx, tx, event.ID); err != nil {
			return err
		}
		result.Registration = reg
		return s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Registration, EventRegistrationCreated, reg.RegistrationNo, map[string]interface{}{
			"registration_id": reg.RegistrationNo,
			"user_id":         userID,
			"event_id":        event.ID,
			"fee":             event.Fee,
			"transaction_id":  reg.TransactionNo,
		})
	})
	if errors.Is(err, repository.ErrDuplicateRegistration) {
		// another process registered between our check and insert
		existing, gerr := s.eventRepo.GetActiveRegistration(ctx, nil, userID, eventID)
		if gerr == nil && existing != nil {
			return &RegistrationResult{Registration: existing, AlreadyRegistered: true}, nil
		}
	}
	if err != nil {
		return nil, translate(err, "register")
	}

	if !result.AlreadyRegistered {
		zerolog.Ctx(ctx).Info().
			Str("component", "registration").
			Str("registration_no", result.Registration.RegistrationNo).
			Str("event_id", eventID).
			Int64("fee", event.Fee).
			Msg("registered for event")
	}
	return result, nil
}

func (s *RegistrationService) ListRegistrations(ctx context.Context, userID string) ([]*model.EventRegistration, error) {
	regs, err := s.eventRepo.ListRegistrations(ctx, userID)
	if err != nil {
		return nil, translate(err, "list registrations")
	}
	return regs, nil
}

// UpdateRegistrationStatus is the administrative move of a user's active
// registration to participated or cancelled. Cancelling does not refund the fee.
func (s *RegistrationService) UpdateRegistrationStatus(ctx context.Context, userID, eventID, status string) (*model.EventRegistration, error) {
	if status != model.RegistrationStatusParticipated && status != model.RegistrationStatusCancelled {
		return nil, apperr.Newf(apperr.CodeValidation, "status must be %s or %s", model.RegistrationStatusParticipated, model.RegistrationStatusCancelled)
	}

	var reg *model.EventRegistration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		reg, err = s.eventRepo.GetActiveRegistration(ctx, tx, userID, eventID)
		if err != nil {
			return err
		}
		if reg == nil {
			return apperr.Newf(apperr.CodeRegistrationNotFound, "no active registration of %s for event %s", userID, eventID)
		}
		if err := s.eventRepo.UpdateRegistrationStatus(ctx, tx, reg.RegistrationNo, reg.Status, status); err != nil {
			return err
		}
		reg.Status = status
		return s.outboxRepo.Enqueue(ctx, tx, s.cfg.Kafka.Topic.Registration, EventRegistrationUpdated, reg.RegistrationNo, map[string]interface{}{
			"registration_id": reg.RegistrationNo,
			"user_id":         userID,
			"event_id":        eventID,
			"status":          status,
		})
	})
	if err != nil {
		return nil, translate(err, "update registration")
	}
	return reg, nil
}

func (s *RegistrationService) ListEvents(ctx context.Context) ([]*model.Event, error) {
	events, err := s.eventRepo.List(ctx)
	if err != nil {
		return nil, translate(err, "list events")
	}
	return events, nil
}

// Leaderboard lists events by registered attendees, most popular first.
func (s *RegistrationService) Leaderboard(ctx context.Context) ([]*model.Event, error) {
	events, err := s.eventRepo.Leaderboard(ctx)
	if err != nil {
		return nil, translate(err, "leaderboard")
	}
	return events, nil
}
