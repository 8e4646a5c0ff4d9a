package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"tournament-enrollment-system/models"
	"tournament-enrollment-system/txguard"
)

type AdminService struct {
	DB *gorm.DB
}

func NewAdminService(db *gorm.DB) *AdminService {
	return &AdminService{DB: db}
}

type CreateTournamentInput struct {
	Name        string
	Description string
	MaxEntrants int
	EntryFee    int64
	StartTime   time.Time
	EndTime     time.Time
}

// CreateTournament creates a draft tournament with a URL-safe slug derived
// from the name. A slug collision gets a short uuid suffix rather than
// failing, since names are not unique.
func (s *AdminService) CreateTournament(ctx context.Context, in CreateTournamentInput) (*models.Tournament, error) {
	tournament := models.Tournament{
		ID:          uuid.NewString(),
		Slug:        slug.Make(in.Name),
		Name:        in.Name,
		Description: in.Description,
		MaxEntrants: in.MaxEntrants,
		EntryFee:    in.EntryFee,
		Status:      models.TournamentStatusDraft,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		outcome, err := txguard.InsertUnique(tx, &tournament)
		if err != nil {
			return fmt.Errorf("create tournament -> %w", err)
		}
		if outcome == txguard.AlreadyExisted {
			tournament.Slug = fmt.Sprintf("%s-%s", tournament.Slug, tournament.ID[:8])
			if err := tx.Create(&tournament).Error; err != nil {
				return fmt.Errorf("create tournament -> %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tournament, nil
}

// Transition moves a tournament one step forward in its lifecycle
// (draft -> open -> in_progress). Completion and distribution have their own
// pipeline; archive is allowed from rewards_distributed only. Repeating a
// transition the tournament already made succeeds without a write.
func (s *AdminService) Transition(ctx context.Context, tournamentID, target string) (*models.Tournament, error) {
	source, ok := transitionSource[target]
	if !ok {
		return nil, fmt.Errorf("unknown target status %q", target)
	}
	var tournament models.Tournament
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = txguard.Track(tx)

		if err := txguard.LockRow(tx, txguard.RankCoarse, &tournament, "id = ?", tournamentID); err != nil {
			return err
		}
		if models.StatusAtOrPast(tournament.Status, target) {
			return nil
		}
		if tournament.Status != source {
			return &txguard.GuardError{Op: "transition", EntityID: tournamentID, Err: txguard.ErrInvalidTransition}
		}
		if err := tx.Model(&tournament).UpdateColumn("status", target).Error; err != nil {
			return fmt.Errorf("transition -> %w", err)
		}
		tournament.Status = target
		writeAudit(tx, "transition", "", tournamentID, map[string]any{"to": target})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &tournament, nil
}

// transitionSource maps each admin-reachable status to the status it must
// come from.
var transitionSource = map[string]string{
	models.TournamentStatusOpen:       models.TournamentStatusDraft,
	models.TournamentStatusInProgress: models.TournamentStatusOpen,
	models.TournamentStatusArchived:   models.TournamentStatusDistributed,
}

type CreateSessionInput struct {
	Title      string
	Capacity   int
	CreditCost int64
	StartsAt   time.Time
}

func (s *AdminService) CreateSession(ctx context.Context, in CreateSessionInput) (*models.Session, error) {
	if in.Capacity <= 0 {
		return nil, fmt.Errorf("session capacity must be positive, got %d", in.Capacity)
	}
	session := models.Session{
		ID:         uuid.NewString(),
		Title:      in.Title,
		Capacity:   in.Capacity,
		CreditCost: in.CreditCost,
		Open:       true,
		StartsAt:   in.StartsAt,
	}
	if err := s.DB.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("create session -> %w", err)
	}
	return &session, nil
}

// CloseSession stops new bookings. Existing seats and waitlist entries are
// untouched; cancellations still work so refunds remain possible.
func (s *AdminService) CloseSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = txguard.Track(tx)
		if err := txguard.LockRow(tx, txguard.RankCoarse, &session, "id = ?", sessionID); err != nil {
			return err
		}
		if !session.Open {
			return nil
		}
		if err := tx.Model(&session).UpdateColumn("open", false).Error; err != nil {
			return err
		}
		session.Open = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetTournament loads a tournament by id or slug, with its live entrant count.
func (s *AdminService) GetTournament(ctx context.Context, idOrSlug string) (*models.Tournament, error) {
	var tournament models.Tournament
	query := s.DB.WithContext(ctx).Where("slug = ?", idOrSlug)
	if _, err := uuid.Parse(idOrSlug); err == nil {
		query = s.DB.WithContext(ctx).Where("id = ?", idOrSlug)
	}
	err := query.First(&tournament).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, txguard.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&models.Enrollment{}).
		Where("tournament_id = ? AND active", tournament.ID).
		Count(&tournament.EntrantCount).Error; err != nil {
		return nil, err
	}
	return &tournament, nil
}
