package service

import (
	"context"
	"database/sql"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/repository"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
)

type mockTicketStore struct {
	tickets map[string]models.TicketPayload
}

func (m *mockTicketStore) Store(ctx context.Context, ticket string, payload models.TicketPayload) error {
	if m.tickets == nil {
		m.tickets = make(map[string]models.TicketPayload)
	}
	m.tickets[ticket] = payload
	return nil
}

func (m *mockTicketStore) Consume(ctx context.Context, ticket string) (*models.TicketPayload, error) {
	payload, ok := m.tickets[ticket]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}
	delete(m.tickets, ticket)
	return &payload, nil
}

type mockUserRepo struct {
	users   map[string]models.User
	created []models.User
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range m.users {
		if u.ID == id {
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if u, ok := m.users[username]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]models.User)
	}
	if user.ID == "" {
		user.ID = "user-new"
	}
	m.users[user.Username] = *user
	m.created = append(m.created, *user)
	return nil
}

func (m *mockUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	return nil
}

func newCASFixture(users *mockUserRepo) (*CASService, *mockTicketStore) {
	tickets := &mockTicketStore{}
	auth := NewAuthService(users, nil, zap.NewNop(), AuthConfig{
		Secret:     "test-secret",
		Expiration: time.Hour,
		Issuer:     "tutoring-api",
	})
	store := NewSeededCredentialStore([]string{
		"an.nguyen:secret123:student",
		"binh.tran:secret456:tutor",
		"broken-entry",
		"no.role:pw:janitor",
	})
	svc := NewCASService(store, tickets, users, auth, "http://localhost:8080/sso/callback", zap.NewNop())
	return svc, tickets
}

func TestSeededCredentialStoreSkipsMalformedEntries(t *testing.T) {
	store := NewSeededCredentialStore([]string{
		"valid:pw:STUDENT",
		"missing-parts",
		"norole:pw:",
		":pw:STUDENT",
	})

	_, err := store.Authenticate("valid", "pw")
	require.NoError(t, err)
	_, err = store.Authenticate("missing-parts", "")
	require.Error(t, err)
	_, err = store.Authenticate("norole", "pw")
	require.Error(t, err)
}

func TestCASLoginIssuesServiceTicket(t *testing.T) {
	svc, tickets := newCASFixture(&mockUserRepo{})

	redirect, err := svc.Login(context.Background(), "an.nguyen", "secret123", "")
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	ticket := parsed.Query().Get("ticket")
	assert.True(t, strings.HasPrefix(ticket, "ST-"))
	assert.Contains(t, tickets.tickets, ticket)
}

func TestCASLoginRejectsBadPassword(t *testing.T) {
	svc, _ := newCASFixture(&mockUserRepo{})

	_, err := svc.Login(context.Background(), "an.nguyen", "wrong", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestCASValidateConsumesTicketOnce(t *testing.T) {
	svc, _ := newCASFixture(&mockUserRepo{})

	redirect, err := svc.Login(context.Background(), "an.nguyen", "secret123", "")
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)
	ticket := parsed.Query().Get("ticket")

	payload, err := svc.Validate(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, "an.nguyen", payload.Username)
	assert.Equal(t, models.RoleStudent, payload.Role)

	// A second validation of the same ticket must fail.
	_, err = svc.Validate(context.Background(), ticket)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTicketInvalid.Code, appErrors.FromError(err).Code)
}

func TestCASValidateRejectsMalformedTicket(t *testing.T) {
	svc, _ := newCASFixture(&mockUserRepo{})

	_, err := svc.Validate(context.Background(), "not-a-ticket")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTicketInvalid.Code, appErrors.FromError(err).Code)
}

func TestCASCallbackProvisionsAccountOnFirstLogin(t *testing.T) {
	users := &mockUserRepo{}
	svc, _ := newCASFixture(users)

	redirect, err := svc.Login(context.Background(), "binh.tran", "secret456", "")
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)

	resp, err := svc.Callback(context.Background(), parsed.Query().Get("ticket"))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "binh.tran", resp.User.Username)
	assert.Equal(t, models.RoleTutor, resp.User.Role)
	require.Len(t, users.created, 1)
	assert.Empty(t, users.created[0].PasswordHash)
	assert.True(t, users.created[0].Active)
}

func TestCASCallbackReusesExistingAccount(t *testing.T) {
	users := &mockUserRepo{users: map[string]models.User{
		"an.nguyen": {ID: "user-1", Username: "an.nguyen", Role: models.RoleStudent, Active: true},
	}}
	svc, _ := newCASFixture(users)

	redirect, err := svc.Login(context.Background(), "an.nguyen", "secret123", "")
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)

	resp, err := svc.Callback(context.Background(), parsed.Query().Get("ticket"))
	require.NoError(t, err)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Empty(t, users.created)
}

func TestCASCallbackRejectsInactiveAccount(t *testing.T) {
	users := &mockUserRepo{users: map[string]models.User{
		"an.nguyen": {ID: "user-1", Username: "an.nguyen", Role: models.RoleStudent, Active: false},
	}}
	svc, _ := newCASFixture(users)

	redirect, err := svc.Login(context.Background(), "an.nguyen", "secret123", "")
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)

	_, err = svc.Callback(context.Background(), parsed.Query().Get("ticket"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestCASLoginCarriesTicketToCustomService(t *testing.T) {
	svc, _ := newCASFixture(&mockUserRepo{})

	redirect, err := svc.Login(context.Background(), "an.nguyen", "secret123", "https://portal.example.edu/callback?lang=vi")
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "portal.example.edu", parsed.Host)
	assert.Equal(t, "vi", parsed.Query().Get("lang"))
	assert.NotEmpty(t, parsed.Query().Get("ticket"))
}
