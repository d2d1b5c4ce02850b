package service

import (
	"context"
	"time"

	"github.com/createarena/arena/database"
	"github.com/createarena/arena/database/model"
	"github.com/createarena/arena/logger"
	"github.com/createarena/arena/util/common"
	"github.com/createarena/arena/web/events"

	"gorm.io/gorm"
)

// CreatorService handles applications for the creator role.
type CreatorService struct {
	db     *gorm.DB
	events events.Publisher
	now    func() time.Time
}

func NewCreatorService(db *gorm.DB, pub events.Publisher) *CreatorService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &CreatorService{db: db, events: pub, now: time.Now}
}

// Apply files an application for email. A pending application is returned as
// is with created=false; creators and admins cannot apply.
func (s *CreatorService) Apply(ctx context.Context, email, name string) (*model.CreatorApplication, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, false, common.InvalidInput("email is required")
	}

	var users []model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).Limit(1).Find(&users).Error; err != nil {
		return nil, false, common.Internal(err)
	}
	if len(users) > 0 && model.HasCapability(users[0].Role, model.RoleCreator, model.RoleAdmin) {
		return nil, false, common.InvalidInput("already a " + string(users[0].Role))
	}
	if name == "" && len(users) > 0 {
		name = users[0].Name
	}

	var pending []model.CreatorApplication
	err := s.db.WithContext(ctx).
		Where("email = ? AND status = ?", email, model.ApplicationPending).
		Limit(1).
		Find(&pending).Error
	if err != nil {
		return nil, false, common.Internal(err)
	}
	if len(pending) > 0 {
		return &pending[0], false, nil
	}

	app := &model.CreatorApplication{
		Email:     email,
		Name:      name,
		Status:    model.ApplicationPending,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(app).Error; err != nil {
		return nil, false, common.Internal(err)
	}
	return app, true, nil
}

// List returns applications, oldest first, optionally filtered by status.
func (s *CreatorService) List(ctx context.Context, status string) ([]model.CreatorApplication, error) {
	q := s.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	apps := make([]model.CreatorApplication, 0)
	if err := q.Order("created_at ASC, id ASC").Find(&apps).Error; err != nil {
		return nil, common.Internal(err)
	}
	return apps, nil
}

// Latest returns the newest application of email.
func (s *CreatorService) Latest(ctx context.Context, email string) (*model.CreatorApplication, error) {
	var apps []model.CreatorApplication
	err := s.db.WithContext(ctx).
		Where("email = ?", normalizeEmail(email)).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&apps).Error
	if err != nil {
		return nil, common.Internal(err)
	}
	if len(apps) == 0 {
		return nil, common.NotFound("no creator application")
	}
	return &apps[0], nil
}

// Decide approves or rejects an application. Approval makes the applicant a
// creator, registering them if needed; an admin keeps the admin role.
func (s *CreatorService) Decide(ctx context.Context, id, status string) (*model.CreatorApplication, error) {
	decision := model.ApplicationStatus(status)
	if decision != model.ApplicationApproved && decision != model.ApplicationRejected {
		return nil, common.Invalid(common.CodeInvalidStatus, "Invalid status")
	}

	app := &model.CreatorApplication{}
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ?", id).First(app).Error
		if database.IsNotFound(err) {
			return common.NotFound("application not found")
		}
		if err != nil {
			return err
		}
		if err := tx.Model(app).Updates(map[string]any{"status": decision, "decided_at": now}).Error; err != nil {
			return err
		}
		app.Status = decision
		app.DecidedAt = &now

		if decision != model.ApplicationApproved {
			return nil
		}
		user := &model.User{}
		err = tx.Where(model.User{Email: app.Email}).
			Attrs(model.User{Name: app.Name, Role: model.RoleUser, CreatedAt: now}).
			FirstOrCreate(user).Error
		if err != nil {
			return err
		}
		if user.Role != model.RoleUser {
			return nil
		}
		return tx.Model(&model.User{}).Where("id = ?", user.Id).
			Updates(map[string]any{"role": model.RoleCreator, "updated_at": now}).Error
	})
	if err != nil {
		if common.IsKind(err, common.KindNotFound) {
			return nil, err
		}
		return nil, common.Internal(err)
	}

	logger.Infof("creator application %s for %s %s", app.Id, app.Email, decision)
	if decision == model.ApplicationApproved {
		publish(ctx, s.events, events.RoleChanged, map[string]any{"email": app.Email, "to": model.RoleCreator, "by": "creator-application"})
	}
	return app, nil
}
