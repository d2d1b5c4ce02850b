package service

import (
	"context"
	"testing"

	"github.com/createarena/arena/database/model"
	"github.com/createarena/arena/util/common"
	"github.com/createarena/arena/web/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, created, err := f.users.Register(ctx, "a@x.com", "Alice", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.RoleUser, u.Role)

	again, created, err := f.users.Register(ctx, "A@X.com", "Someone Else", "pic")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, u.Id, again.Id)
	assert.Equal(t, "Alice", again.Name)

	var count int64
	f.db.Model(&model.User{}).Where("email = ?", "a@x.com").Count(&count)
	assert.EqualValues(t, 1, count)

	_, _, err = f.users.Register(ctx, "  ", "", "")
	assert.True(t, common.IsKind(err, common.KindInvalidInput))
}

func TestRoleOf(t *testing.T) {
	f := newFixture(t)
	f.user(t, "c@x.io", model.RoleCreator)

	role, err := f.users.RoleOf(context.Background(), "C@x.io")
	require.NoError(t, err)
	assert.Equal(t, model.RoleCreator, role)

	_, err = f.users.RoleOf(context.Background(), "ghost@x.io")
	assert.True(t, common.IsKind(err, common.KindNotFound))
}

func TestOriginalAdminIsEarliestAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	none, err := f.users.OriginalAdmin(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	first := f.user(t, "first@x.io", model.RoleAdmin)
	f.user(t, "second@x.io", model.RoleAdmin)

	orig, err := f.users.OriginalAdmin(ctx)
	require.NoError(t, err)
	require.NotNil(t, orig)
	assert.Equal(t, first.Id, orig.Id)
}

func TestChangeRole(t *testing.T) {
	tests := []struct {
		name      string
		requester string
		target    string
		role      string
		wantKind  common.Kind
		wantRole  model.Role
	}{
		{"original admin grants admin", "root@x.io", "user@x.io", "admin", -1, model.RoleAdmin},
		{"original admin grants creator", "root@x.io", "user@x.io", "creator", -1, model.RoleCreator},
		{"second admin grants creator", "deputy@x.io", "user@x.io", "creator", -1, model.RoleCreator},
		{"second admin cannot grant admin", "deputy@x.io", "user@x.io", "admin", common.KindForbidden, model.RoleUser},
		{"second admin cannot demote an admin", "deputy@x.io", "root@x.io", "user", common.KindForbidden, model.RoleAdmin},
		{"original admin demotes second admin", "root@x.io", "deputy@x.io", "user", -1, model.RoleUser},
		{"original admin cannot demote themself", "root@x.io", "root@x.io", "creator", common.KindForbidden, model.RoleAdmin},
		{"creator requester cannot grant admin", "maker@x.io", "user@x.io", "admin", common.KindForbidden, model.RoleUser},
		{"unknown role", "root@x.io", "user@x.io", "owner", common.KindInvalidInput, model.RoleUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			users := map[string]*model.User{}
			users["root@x.io"] = f.user(t, "root@x.io", model.RoleAdmin)
			users["deputy@x.io"] = f.user(t, "deputy@x.io", model.RoleAdmin)
			users["maker@x.io"] = f.user(t, "maker@x.io", model.RoleCreator)
			users["user@x.io"] = f.user(t, "user@x.io", model.RoleUser)

			updated, err := f.users.ChangeRole(context.Background(), tt.requester, users[tt.target].Id, tt.role)
			if tt.wantKind >= 0 {
				assert.True(t, common.IsKind(err, tt.wantKind), "got %v", err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantRole, updated.Role)
			}

			role, err := f.users.RoleOf(context.Background(), tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, role)
		})
	}
}

func TestChangeRoleWithoutAnyAdminIsForbidden(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "user@x.io", model.RoleUser)

	_, err := f.users.ChangeRole(context.Background(), "user@x.io", u.Id, "admin")
	assert.True(t, common.IsKind(err, common.KindForbidden))
}

func TestChangeRoleUnknownTarget(t *testing.T) {
	f := newFixture(t)
	f.user(t, "root@x.io", model.RoleAdmin)

	_, err := f.users.ChangeRole(context.Background(), "root@x.io", "missing", "creator")
	assert.True(t, common.IsKind(err, common.KindNotFound))
}

func TestChangeRolePublishesEvent(t *testing.T) {
	f := newFixture(t)
	f.user(t, "root@x.io", model.RoleAdmin)
	u := f.user(t, "user@x.io", model.RoleUser)

	_, err := f.users.ChangeRole(context.Background(), "root@x.io", u.Id, "creator")
	require.NoError(t, err)
	assert.Contains(t, f.events.Keys(), events.RoleChanged)
}

func TestBootstrapAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "existing@x.io", model.RoleUser)

	admin, err := f.users.BootstrapAdmin(ctx, "existing@x.io", "")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, admin.Role)

	orig, err := f.users.OriginalAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "existing@x.io", orig.Email)

	_, err = f.users.BootstrapAdmin(ctx, "late@x.io", "")
	assert.True(t, common.IsKind(err, common.KindForbidden))
}

func TestBootstrapAdminCreatesUser(t *testing.T) {
	f := newFixture(t)
	admin, err := f.users.BootstrapAdmin(context.Background(), "New@x.io", "Founder")
	require.NoError(t, err)
	assert.Equal(t, "new@x.io", admin.Email)
	assert.NotEmpty(t, admin.Id)
}
