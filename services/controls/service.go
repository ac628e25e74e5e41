package controls

import (
	"context"
	"errors"
	"fmt"
	"time"

	sessionRepo "carelink/database/repository/session"
	"carelink/models"
	"carelink/services/apperrors"

	"go.uber.org/zap"
)

// ControlService scopes the hub to video-call bookings. The session id is the
// booking id.
type ControlService interface {
	Apply(ctx context.Context, update models.ControlUpdate) (bool, error)
	State(ctx context.Context, sessionID, partyID string) (*models.ControlState, error)
	Subscribe(ctx context.Context, sessionID, partyID string) (<-chan models.ControlUpdate, error)
}

type DefaultControlService struct {
	Hub    Hub
	Repo   sessionRepo.SessionRepository
	Logger *zap.Logger
	Now    func() time.Time
}

func NewControlService(hub Hub, repo sessionRepo.SessionRepository, logger *zap.Logger) *DefaultControlService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultControlService{Hub: hub, Repo: repo, Logger: logger, Now: time.Now}
}

func (s *DefaultControlService) Apply(ctx context.Context, update models.ControlUpdate) (bool, error) {
	if !update.Field.Valid() {
		return false, apperrors.Validation("unknown control field %q", update.Field)
	}
	if update.Seq == 0 {
		return false, apperrors.Validation("seq must be positive")
	}
	if _, err := s.session(ctx, update.SessionID, update.PartyID, true); err != nil {
		return false, err
	}
	update.At = s.Now().UTC()

	applied, err := s.Hub.Apply(ctx, update)
	if err != nil {
		return false, fmt.Errorf("control hub: %w", err)
	}
	if !applied {
		s.Logger.Debug("Stale control update dropped",
			zap.String("sessionID", update.SessionID),
			zap.String("partyID", update.PartyID),
			zap.String("field", string(update.Field)),
			zap.Uint64("seq", update.Seq))
	}
	return applied, nil
}

func (s *DefaultControlService) State(ctx context.Context, sessionID, partyID string) (*models.ControlState, error) {
	if _, err := s.session(ctx, sessionID, partyID, false); err != nil {
		return nil, err
	}
	return s.Hub.State(ctx, sessionID)
}

func (s *DefaultControlService) Subscribe(ctx context.Context, sessionID, partyID string) (<-chan models.ControlUpdate, error) {
	if _, err := s.session(ctx, sessionID, partyID, false); err != nil {
		return nil, err
	}
	return s.Hub.Subscribe(ctx, sessionID)
}

// session loads the booking behind a control channel. Publishing needs the
// booking to be confirmed or in progress; reading only needs a party.
func (s *DefaultControlService) session(ctx context.Context, sessionID, partyID string, publishing bool) (*models.Booking, error) {
	b, err := s.Repo.GetBooking(ctx, sessionID)
	if errors.Is(err, sessionRepo.ErrNotFound) {
		return nil, apperrors.NotFound("session %s not found", sessionID)
	}
	if err != nil {
		return nil, err
	}
	if b.ServiceKind != models.ServiceVideoCall {
		return nil, apperrors.Validation("booking %s is not a video call", b.ID)
	}
	if !b.IsParty(partyID) {
		return nil, apperrors.InvalidTransition("only a party to booking %s can use its controls", b.ID)
	}
	if publishing && b.Status != models.BookingConfirmed && b.Status != models.BookingInProgress {
		return nil, apperrors.InvalidTransition("booking %s is %s, controls are closed", b.ID, b.Status)
	}
	return b, nil
}
