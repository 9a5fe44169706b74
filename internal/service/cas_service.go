package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/repository"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
)

// CredentialStore verifies primary credentials for the simulated campus SSO.
// Injecting it keeps the CAS flow testable and swappable for a real backend.
type CredentialStore interface {
	Authenticate(username, password string) (*models.TicketPayload, error)
}

// SeededCredentialStore is an in-memory CredentialStore loaded from
// "username:password:role" config entries. Outside production only.
type SeededCredentialStore struct {
	accounts map[string]seededAccount
}

type seededAccount struct {
	password string
	role     models.UserRole
}

// NewSeededCredentialStore parses seed entries, skipping malformed ones.
func NewSeededCredentialStore(entries []string) *SeededCredentialStore {
	store := &SeededCredentialStore{accounts: make(map[string]seededAccount, len(entries))}
	for _, entry := range entries {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			continue
		}
		role := models.UserRole(strings.ToUpper(parts[2]))
		switch role {
		case models.RoleStudent, models.RoleTutor, models.RoleOffice:
		default:
			continue
		}
		store.accounts[parts[0]] = seededAccount{password: parts[1], role: role}
	}
	return store
}

// Authenticate checks the username and password against the seeded accounts.
func (s *SeededCredentialStore) Authenticate(username, password string) (*models.TicketPayload, error) {
	account, ok := s.accounts[username]
	if !ok || account.password != password {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	return &models.TicketPayload{
		Username: username,
		Email:    username + "@hcmut.edu.vn",
		FullName: username,
		Role:     account.role,
	}, nil
}

type ticketStore interface {
	Store(ctx context.Context, ticket string, payload models.TicketPayload) error
	Consume(ctx context.Context, ticket string) (*models.TicketPayload, error)
}

type casUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// CASService simulates the campus central authentication service: it issues
// single-use service tickets and exchanges validated tickets for local
// accounts and access tokens.
type CASService struct {
	credentials CredentialStore
	tickets     ticketStore
	users       casUserRepository
	auth        *AuthService
	serviceURL  string
	logger      *zap.Logger
}

// NewCASService constructs the service.
func NewCASService(credentials CredentialStore, tickets ticketStore, users casUserRepository, auth *AuthService, serviceURL string, logger *zap.Logger) *CASService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CASService{
		credentials: credentials,
		tickets:     tickets,
		users:       users,
		auth:        auth,
		serviceURL:  serviceURL,
		logger:      logger,
	}
}

// Login verifies credentials and returns the service redirect URL carrying a
// fresh single-use ticket.
func (s *CASService) Login(ctx context.Context, username, password, service string) (string, error) {
	if username == "" || password == "" {
		return "", appErrors.Clone(appErrors.ErrValidation, "username and password are required")
	}
	payload, err := s.credentials.Authenticate(username, password)
	if err != nil {
		return "", err
	}

	ticket := "ST-" + uuid.NewString()
	if err := s.tickets.Store(ctx, ticket, *payload); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store ticket")
	}

	target := service
	if target == "" {
		target = s.serviceURL
	}
	redirect, err := url.Parse(target)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrValidation, "invalid service url")
	}
	query := redirect.Query()
	query.Set("ticket", ticket)
	redirect.RawQuery = query.Encode()

	s.logger.Info("service ticket issued", zap.String("username", username))
	return redirect.String(), nil
}

// Validate consumes a ticket and returns the identity it was issued for.
// Tickets expire with their TTL and validate at most once.
func (s *CASService) Validate(ctx context.Context, ticket string) (*models.TicketPayload, error) {
	if !strings.HasPrefix(ticket, "ST-") {
		return nil, appErrors.Clone(appErrors.ErrTicketInvalid, "")
	}
	payload, err := s.tickets.Consume(ctx, ticket)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			return nil, appErrors.Clone(appErrors.ErrTicketInvalid, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate ticket")
	}
	return payload, nil
}

// Callback exchanges a validated ticket for an access token, provisioning the
// local account on first login.
func (s *CASService) Callback(ctx context.Context, ticket string) (*models.LoginResponse, error) {
	payload, err := s.Validate(ctx, ticket)
	if err != nil {
		return nil, err
	}
	user, err := s.getOrCreateUser(ctx, payload)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}
	return s.auth.IssueToken(ctx, user)
}

func (s *CASService) getOrCreateUser(ctx context.Context, payload *models.TicketPayload) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, payload.Username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	user = &models.User{
		Username: payload.Username,
		Email:    payload.Email,
		FullName: payload.FullName,
		Role:     payload.Role,
		Active:   true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to provision user")
	}
	s.logger.Info("account provisioned via sso", zap.String("username", user.Username), zap.String("role", fmt.Sprint(user.Role)))
	return user, nil
}
