// Package service holds the arena's business operations: the role store, the
// contest lifecycle, the payment reconciler and creator applications.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/createarena/arena/database"
	"github.com/createarena/arena/database/model"
	"github.com/createarena/arena/logger"
	"github.com/createarena/arena/util/common"
	"github.com/createarena/arena/web/events"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserService is the role store: users keyed by email, each holding one role.
type UserService struct {
	db     *gorm.DB
	events events.Publisher
	now    func() time.Time
}

func NewUserService(db *gorm.DB, pub events.Publisher) *UserService {
	if pub == nil {
		pub = events.Nop{}
	}
	return &UserService{db: db, events: pub, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the user with role user. An existing email is left
// untouched and reported with created=false.
func (s *UserService) Register(ctx context.Context, email, name, photoURL string) (*model.User, bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, false, common.InvalidInput("email is required")
	}

	user := &model.User{
		Email:     email,
		Name:      name,
		PhotoURL:  photoURL,
		Role:      model.RoleUser,
		CreatedAt: s.now(),
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "email"}}, DoNothing: true}).
		Create(user)
	if res.Error != nil {
		return nil, false, common.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := s.GetByEmail(ctx, email)
		return existing, false, err
	}
	return user, true, nil
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(user).Error
	if database.IsNotFound(err) {
		return nil, common.NotFound("user not found")
	}
	if err != nil {
		return nil, common.Internal(err)
	}
	return user, nil
}

func (s *UserService) RoleOf(ctx context.Context, email string) (model.Role, error) {
	user, err := s.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&users).Error; err != nil {
		return nil, common.Internal(err)
	}
	return users, nil
}

// OriginalAdmin returns the earliest-created admin, or nil when there is no admin.
func (s *UserService) OriginalAdmin(ctx context.Context) (*model.User, error) {
	var admins []model.User
	err := s.db.WithContext(ctx).
		Where("role = ?", model.RoleAdmin).
		Order("created_at ASC, id ASC").
		Limit(1).
		Find(&admins).Error
	if err != nil {
		return nil, common.Internal(err)
	}
	if len(admins) == 0 {
		return nil, nil
	}
	return &admins[0], nil
}

// ChangeRole sets the role of the user with targetId. Granting or revoking
// admin is reserved to the original admin, who cannot demote themself.
func (s *UserService) ChangeRole(ctx context.Context, requesterEmail, targetId, newRole string) (*model.User, error) {
	role := model.Role(newRole)
	if !role.Valid() {
		return nil, common.InvalidInput("invalid role: " + newRole)
	}

	target := &model.User{}
	err := s.db.WithContext(ctx).Where("id = ?", targetId).First(target).Error
	if database.IsNotFound(err) {
		return nil, common.NotFound("user not found")
	}
	if err != nil {
		return nil, common.Internal(err)
	}

	if role == model.RoleAdmin || target.Role == model.RoleAdmin {
		original, err := s.OriginalAdmin(ctx)
		if err != nil {
			return nil, err
		}
		if original == nil || original.Email != normalizeEmail(requesterEmail) {
			return nil, common.Forbidden("only the original admin can grant or revoke admin")
		}
		if original.Id == target.Id && role != model.RoleAdmin {
			return nil, common.Forbidden("the original admin cannot be demoted")
		}
	}

	if target.Role == role {
		return target, nil
	}

	previous := target.Role
	now := s.now()
	err = s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", target.Id).
		Updates(map[string]any{"role": role, "updated_at": now}).Error
	if err != nil {
		return nil, common.Internal(err)
	}
	target.Role = role
	target.UpdatedAt = now

	logger.Infof("role of %s changed from %s to %s by %s", target.Email, previous, role, requesterEmail)
	publish(ctx, s.events, events.RoleChanged, map[string]any{
		"userId": target.Id, "email": target.Email, "from": previous, "to": role, "by": requesterEmail,
	})
	return target, nil
}

// BootstrapAdmin makes email the first admin. It fails once any admin exists,
// so the original admin can only be chosen out of band.
func (s *UserService) BootstrapAdmin(ctx context.Context, email, name string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, common.InvalidInput("email is required")
	}

	var user *model.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admins int64
		if err := tx.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&admins).Error; err != nil {
			return err
		}
		if admins > 0 {
			return common.Forbidden("an admin already exists")
		}

		u := &model.User{}
		err := tx.Where("email = ?", email).First(u).Error
		switch {
		case database.IsNotFound(err):
			u = &model.User{Email: email, Name: name, Role: model.RoleAdmin, CreatedAt: s.now()}
			if err := tx.Create(u).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			u.Role = model.RoleAdmin
			if err := tx.Model(u).Updates(map[string]any{"role": model.RoleAdmin, "updated_at": s.now()}).Error; err != nil {
				return err
			}
		}
		user = u
		return nil
	})
	if err != nil {
		if common.IsKind(err, common.KindForbidden) {
			return nil, err
		}
		return nil, common.Internal(err)
	}
	logger.Notice("bootstrapped original admin", email)
	return user, nil
}

func publish(ctx context.Context, pub events.Publisher, key string, data any) {
	if err := pub.Publish(ctx, key, data); err != nil {
		logger.Warningf("publish %s failed: %v", key, err)
	}
}
