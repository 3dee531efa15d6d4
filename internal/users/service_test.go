package users

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	users     map[int64]User
	passwords map[int64]string
	nextID    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: map[int64]User{}, passwords: map[int64]string{}, nextID: 1}
}

func (m *memoryRepo) List(_ context.Context) ([]User, error) {
	var out []User
	for id := int64(1); id < m.nextID; id++ {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memoryRepo) Insert(_ context.Context, in CreateInput, hash string) (int64, error) {
	for _, u := range m.users {
		if u.Email == in.Email {
			return 0, ErrEmailTaken
		}
	}
	id := m.nextID
	m.nextID++
	m.users[id] = User{
		ID: id, Email: in.Email, Name: in.Name, Role: in.Role,
		IsActive: true, LocationIDs: in.LocationIDs,
	}
	m.passwords[id] = hash
	return id, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, in UpdateInput) error {
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	if in.LocationIDs != nil {
		u.LocationIDs = in.LocationIDs
	}
	m.users[id] = u
	return nil
}

func (m *memoryRepo) SetPassword(_ context.Context, id int64, hash string) error {
	if _, ok := m.users[id]; !ok {
		return ErrUserNotFound
	}
	m.passwords[id] = hash
	return nil
}

func (m *memoryRepo) ReplaceLocations(_ context.Context, userID int64, locationIDs []int64) error {
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.LocationIDs = locationIDs
	m.users[userID] = u
	return nil
}

func (m *memoryRepo) Locations(_ context.Context, userID int64) ([]int64, error) {
	return m.users[userID].LocationIDs, nil
}

var (
	admin  = shared.Actor{ID: 1, Role: shared.RoleAdmin}
	keeper = shared.Actor{ID: 5, Role: shared.RoleStorekeep}
)

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, nil, slog.Default()), repo
}

func TestCreateHashesPassword(t *testing.T) {
	svc, repo := newTestService()

	u, err := svc.Create(context.Background(), admin, CreateInput{
		Email:       "keeper@example.com",
		Name:        "Store Keeper",
		Role:        shared.RoleStorekeep,
		Password:    "s3cret-pass",
		LocationIDs: []int64{3},
	})
	require.NoError(t, err)
	require.True(t, u.IsActive)
	require.Equal(t, []int64{3}, u.LocationIDs)

	hash := repo.passwords[u.ID]
	require.NotEqual(t, "s3cret-pass", hash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-pass")))
}

func TestCreateRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), keeper, CreateInput{
		Email: "x@example.com", Name: "X", Role: shared.RoleStorekeep, Password: "s3cret-pass",
	})
	require.True(t, shared.IsCode(err, shared.CodeAccessDenied))
}

func TestCreateRejectsDuplicateEmail(t *testing.T) {
	svc, _ := newTestService()

	in := CreateInput{Email: "dup@example.com", Name: "A", Role: shared.RoleStorekeep, Password: "s3cret-pass"}
	_, err := svc.Create(context.Background(), admin, in)
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), admin, in)
	require.True(t, shared.IsCode(err, shared.CodeConflict))
}

func TestCreateRejectsUnknownRole(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Create(context.Background(), admin, CreateInput{
		Email: "x@example.com", Name: "X", Role: "janitor", Password: "s3cret-pass",
	})
	require.True(t, shared.IsCode(err, shared.CodeValidation))
}

func TestUpdateReplacesLocationAssignments(t *testing.T) {
	svc, _ := newTestService()
	u, err := svc.Create(context.Background(), admin, CreateInput{
		Email: "keeper@example.com", Name: "Keeper", Role: shared.RoleStorekeep,
		Password: "s3cret-pass", LocationIDs: []int64{3},
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), admin, u.ID, UpdateInput{LocationIDs: []int64{4, 5}})
	require.NoError(t, err)
	require.Equal(t, []int64{4, 5}, updated.LocationIDs)
}

func TestUpdateDeactivatesAccount(t *testing.T) {
	svc, _ := newTestService()
	u, err := svc.Create(context.Background(), admin, CreateInput{
		Email: "keeper@example.com", Name: "Keeper", Role: shared.RoleStorekeep, Password: "s3cret-pass",
	})
	require.NoError(t, err)

	inactive := false
	updated, err := svc.Update(context.Background(), admin, u.ID, UpdateInput{IsActive: &inactive})
	require.NoError(t, err)
	require.False(t, updated.IsActive)
}

func TestSetPasswordEnforcesMinimumLength(t *testing.T) {
	svc, _ := newTestService()
	u, err := svc.Create(context.Background(), admin, CreateInput{
		Email: "keeper@example.com", Name: "Keeper", Role: shared.RoleStorekeep, Password: "s3cret-pass",
	})
	require.NoError(t, err)

	err = svc.SetPassword(context.Background(), admin, u.ID, "short")
	require.True(t, shared.IsCode(err, shared.CodeValidation))

	require.NoError(t, svc.SetPassword(context.Background(), admin, u.ID, "longer-pass"))
}

func TestListRequiresAdmin(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.List(context.Background(), keeper)
	require.True(t, shared.IsCode(err, shared.CodeAccessDenied))
}
