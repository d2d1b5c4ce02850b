package service

import (
	"context"
	"strings"
	"time"

	"github.com/createarena/arena/database"
	"github.com/createarena/arena/database/model"
	"github.com/createarena/arena/logger"
	"github.com/createarena/arena/util/common"
	"github.com/createarena/arena/util/random"
	"github.com/createarena/arena/web/cache"
	"github.com/createarena/arena/web/events"

	"gorm.io/gorm"
)

// ContestInput carries the creator-editable fields of a new contest.
type ContestInput struct {
	Name            string     `json:"name"`
	Image           string     `json:"image"`
	Description     string     `json:"description"`
	ContestType     string     `json:"contestType"`
	TaskInstruction string     `json:"taskInstruction"`
	Price           int64      `json:"price"`
	PrizeMoney      int64      `json:"prizeMoney"`
	Deadline        *time.Time `json:"deadline"`
}

func (in *ContestInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return common.InvalidInput("name is required")
	}
	if in.Price <= 0 {
		return common.InvalidInput("price must be a positive integer")
	}
	if in.PrizeMoney < 0 {
		return common.InvalidInput("prizeMoney must not be negative")
	}
	return nil
}

// ContestPatch holds an edit; nil fields are left unchanged.
type ContestPatch struct {
	Name            *string    `json:"name"`
	Image           *string    `json:"image"`
	Description     *string    `json:"description"`
	ContestType     *string    `json:"contestType"`
	TaskInstruction *string    `json:"taskInstruction"`
	Price           *int64     `json:"price"`
	PrizeMoney      *int64     `json:"prizeMoney"`
	Deadline        *time.Time `json:"deadline"`
}

func (p *ContestPatch) updates() (map[string]any, error) {
	u := map[string]any{}
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return nil, common.InvalidInput("name must not be empty")
		}
		u["name"] = *p.Name
	}
	if p.Image != nil {
		u["image"] = *p.Image
	}
	if p.Description != nil {
		u["description"] = *p.Description
	}
	if p.ContestType != nil {
		u["contest_type"] = *p.ContestType
	}
	if p.TaskInstruction != nil {
		u["task_instruction"] = *p.TaskInstruction
	}
	if p.Price != nil {
		if *p.Price <= 0 {
			return nil, common.InvalidInput("price must be a positive integer")
		}
		u["price"] = *p.Price
	}
	if p.PrizeMoney != nil {
		if *p.PrizeMoney < 0 {
			return nil, common.InvalidInput("prizeMoney must not be negative")
		}
		u["prize_money"] = *p.PrizeMoney
	}
	if p.Deadline != nil {
		u["deadline"] = *p.Deadline
	}
	return u, nil
}

// ContestService runs the contest state machine: pending, then approved or
// rejected by an admin. Only the owning creator may edit, and only while pending.
type ContestService struct {
	db     *gorm.DB
	cache  *cache.Cache
	events events.Publisher
	now    func() time.Time
}

func NewContestService(db *gorm.DB, c *cache.Cache, pub events.Publisher) *ContestService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &ContestService{db: db, cache: c, events: pub, now: time.Now}
}

func (s *ContestService) Create(ctx context.Context, creatorEmail string, in ContestInput) (*model.Contest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	contest := &model.Contest{
		CreatorEmail:    normalizeEmail(creatorEmail),
		Name:            strings.TrimSpace(in.Name),
		Image:           in.Image,
		Description:     in.Description,
		ContestType:     in.ContestType,
		TaskInstruction: in.TaskInstruction,
		Price:           in.Price,
		PrizeMoney:      in.PrizeMoney,
		Deadline:        in.Deadline,
		Status:          model.ContestPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.WithContext(ctx).Create(contest).Error; err != nil {
		return nil, common.Internal(err)
	}
	publish(ctx, s.events, events.ContestCreated, contest)
	return contest, nil
}

func (s *ContestService) Get(ctx context.Context, id string) (*model.Contest, error) {
	contest := &model.Contest{}
	err := s.db.WithContext(ctx).Where("id = ?", id).First(contest).Error
	if database.IsNotFound(err) {
		return nil, common.ContestNotFound()
	}
	if err != nil {
		return nil, common.Internal(err)
	}
	return contest, nil
}

// View is Get for public reads; the contest is cached until any contest changes.
func (s *ContestService) View(ctx context.Context, id string) (*model.Contest, error) {
	return cache.GetOrSet(ctx, s.cache, cache.ContestKey(id), cache.TTLContest, func() (*model.Contest, error) {
		return s.Get(ctx, id)
	})
}

// ListApproved returns approved contests, newest approval first. The list is cached
// and dropped whenever a contest changes.
func (s *ContestService) ListApproved(ctx context.Context) ([]model.Contest, error) {
	return cache.GetOrSet(ctx, s.cache, cache.KeyApprovedContests, cache.TTLApprovedContests, func() ([]model.Contest, error) {
		return s.find(ctx, "status = ?", model.ContestApproved)
	})
}

func (s *ContestService) ListAll(ctx context.Context) ([]model.Contest, error) {
	return s.find(ctx, "1 = 1")
}

func (s *ContestService) ListByCreator(ctx context.Context, email string) ([]model.Contest, error) {
	return s.find(ctx, "creator_email = ?", normalizeEmail(email))
}

func (s *ContestService) find(ctx context.Context, query string, args ...any) ([]model.Contest, error) {
	contests := make([]model.Contest, 0)
	err := s.db.WithContext(ctx).Where(query, args...).Order("created_at DESC, id ASC").Find(&contests).Error
	if err != nil {
		return nil, common.Internal(err)
	}
	return contests, nil
}

// Transition moves a contest to approved or rejected and stamps the matching
// timestamp. Approval also assigns a new tracking id. Repeating a transition
// overwrites the earlier stamp.
func (s *ContestService) Transition(ctx context.Context, id, status string) (*model.Contest, error) {
	target, ok := model.ParseTransition(status)
	if !ok {
		return nil, common.Invalid(common.CodeInvalidStatus, "Invalid status")
	}

	now := s.now()
	updates := map[string]any{"status": target, "updated_at": now}
	if target == model.ContestApproved {
		updates["approved_at"] = now
		updates["tracking_id"] = random.TrackingID(now)
	} else {
		updates["rejected_at"] = now
	}

	res := s.db.WithContext(ctx).Model(&model.Contest{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return nil, common.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, common.ContestNotFound()
	}
	s.cache.InvalidateContests(ctx)

	contest, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	key := events.ContestRejected
	if target == model.ContestApproved {
		key = events.ContestApproved
	}
	publish(ctx, s.events, key, contest)
	return contest, nil
}

// Edit applies patch to a pending contest owned by requester.
func (s *ContestService) Edit(ctx context.Context, id, requesterEmail string, patch ContestPatch) (*model.Contest, error) {
	requesterEmail = normalizeEmail(requesterEmail)
	contest, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !contest.OwnedBy(requesterEmail) || contest.Status != model.ContestPending {
		return nil, common.Forbidden("only the creator can edit a pending contest")
	}

	updates, err := patch.updates()
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return contest, nil
	}
	updates["updated_at"] = s.now()

	// the status guard keeps an edit from landing after a concurrent approval
	res := s.db.WithContext(ctx).Model(&model.Contest{}).
		Where("id = ? AND creator_email = ? AND status = ?", id, requesterEmail, model.ContestPending).
		Updates(updates)
	if res.Error != nil {
		return nil, common.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, common.Forbidden("only the creator can edit a pending contest")
	}
	s.cache.InvalidateContests(ctx)
	return s.Get(ctx, id)
}

// Delete removes a contest on behalf of requester, the role-store record of the
// caller. The owner may delete it while pending; an admin may delete it in any state.
func (s *ContestService) Delete(ctx context.Context, id string, requester *model.User) error {
	if requester == nil {
		return common.Forbidden("not allowed to delete this contest")
	}
	requesterEmail := normalizeEmail(requester.Email)
	contest, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	q := s.db.WithContext(ctx).Where("id = ?", id)
	switch {
	case model.HasCapability(requester.Role, model.RoleAdmin):
	case contest.OwnedBy(requesterEmail) && contest.Status == model.ContestPending:
		q = q.Where("creator_email = ? AND status = ?", requesterEmail, model.ContestPending)
	default:
		return common.Forbidden("not allowed to delete this contest")
	}

	res := q.Delete(&model.Contest{})
	if res.Error != nil {
		return common.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return common.Forbidden("not allowed to delete this contest")
	}
	s.cache.InvalidateContests(ctx)
	logger.Infof("contest %s deleted by %s", id, requesterEmail)
	publish(ctx, s.events, events.ContestDeleted, map[string]string{"id": id, "by": requesterEmail})
	return nil
}

// DeclareWinner marks one paid payment of the contest as the winner and flags
// every payment of the contest as decided. Nothing stops a second declaration;
// earlier winners keep their flag and the contest records the latest winner.
// entryId names either the payment or one of its submissions.
func (s *ContestService) DeclareWinner(ctx context.Context, contestId, entryId, winnerEmail string) (*model.Payment, error) {
	winnerEmail = normalizeEmail(winnerEmail)
	if contestId == "" || entryId == "" || winnerEmail == "" {
		return nil, common.InvalidInput("contestId, paymentId and winnerEmail are required")
	}
	if _, err := s.Get(ctx, contestId); err != nil {
		return nil, err
	}

	winner := &model.Payment{}
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := paidEntry(tx, contestId, entryId, winner)
		if database.IsNotFound(err) {
			return common.NotFound("payment not found for this contest")
		}
		if err != nil {
			return err
		}
		if err := tx.Model(&model.Payment{}).Where("contest_id = ?", contestId).
			Update("contest_winner_declared", true).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Payment{}).Where("id = ?", winner.Id).
			Update("is_winner", true).Error; err != nil {
			return err
		}
		return tx.Model(&model.Contest{}).Where("id = ?", contestId).
			Updates(map[string]any{"winner_email": winnerEmail, "winner_declared_at": now, "updated_at": now}).Error
	})
	if err != nil {
		if common.IsKind(err, common.KindNotFound) {
			return nil, err
		}
		return nil, common.Internal(err)
	}
	winner.IsWinner = true
	winner.ContestWinnerDeclared = true

	s.cache.InvalidateContests(ctx)
	publish(ctx, s.events, events.WinnerDeclared, map[string]string{
		"contestId": contestId, "paymentId": winner.Id, "winnerEmail": winnerEmail,
	})
	return winner, nil
}

// paidEntry loads the paid payment of the contest identified by a payment id
// or by the id of one of its submissions.
func paidEntry(tx *gorm.DB, contestId, entryId string, dest *model.Payment) error {
	err := tx.Where("id = ? AND contest_id = ? AND payment_status = ?", entryId, contestId, model.PaymentStatusPaid).
		First(dest).Error
	if !database.IsNotFound(err) {
		return err
	}
	var sub model.Submission
	if err := tx.Where("id = ? AND contest_id = ?", entryId, contestId).First(&sub).Error; err != nil {
		return err
	}
	return tx.Where("id = ? AND contest_id = ? AND payment_status = ?", sub.PaymentId, contestId, model.PaymentStatusPaid).
		First(dest).Error
}
