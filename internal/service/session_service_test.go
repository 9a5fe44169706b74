package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hcmut-ssps/tutoring-api/internal/models"
	"github.com/hcmut-ssps/tutoring-api/internal/repository"
	appErrors "github.com/hcmut-ssps/tutoring-api/pkg/errors"
)

type mockSessionRepo struct {
	sessions  map[string]models.Session
	affected  []string
	cancelled []string
}

func (m *mockSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionDetail, int, error) {
	var list []models.SessionDetail
	for _, s := range m.sessions {
		if filter.TutorID != "" && s.TutorID != filter.TutorID {
			continue
		}
		list = append(list, models.SessionDetail{Session: s})
	}
	return list, len(list), nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) FindDetailByID(ctx context.Context, id string) (*models.SessionDetail, error) {
	if s, ok := m.sessions[id]; ok {
		return &models.SessionDetail{Session: s, SubjectName: "Physics", TutorName: "Dr. Le"}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) Create(ctx context.Context, session *models.Session) error {
	if m.sessions == nil {
		m.sessions = make(map[string]models.Session)
	}
	session.ID = "sess-new"
	m.sessions[session.ID] = *session
	return nil
}

func (m *mockSessionRepo) UpdateSchedule(ctx context.Context, id, days, startTime, endTime string) error {
	s, ok := m.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	if s.Status == models.SessionStatusCompleted || s.Status == models.SessionStatusCancelled {
		return repository.ErrInvalidTransition
	}
	s.Days, s.StartTime, s.EndTime = days, startTime, endTime
	m.sessions[id] = s
	return nil
}

func (m *mockSessionRepo) Transition(ctx context.Context, id string, from, to models.SessionStatus) error {
	s, ok := m.sessions[id]
	if !ok || s.Status != from {
		return repository.ErrInvalidTransition
	}
	s.Status = to
	m.sessions[id] = s
	return nil
}

func (m *mockSessionRepo) CancelWithEnrollments(ctx context.Context, sessionID string) ([]string, error) {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	if s.Status == models.SessionStatusCompleted || s.Status == models.SessionStatusCancelled {
		return nil, repository.ErrInvalidTransition
	}
	s.Status = models.SessionStatusCancelled
	s.EnrolledCount = 0
	m.sessions[sessionID] = s
	m.cancelled = append(m.cancelled, sessionID)
	return m.affected, nil
}

type mockTutorReader struct {
	tutors map[string]models.Tutor
}

func (m *mockTutorReader) FindByUserID(ctx context.Context, userID string) (*models.Tutor, error) {
	if t, ok := m.tutors[userID]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

type mockParticipantRepo struct {
	userIDs []string
	roster  []repository.RosterRow
}

func (m *mockParticipantRepo) ListActiveUserIDsBySession(ctx context.Context, sessionID string) ([]string, error) {
	return m.userIDs, nil
}

func (m *mockParticipantRepo) ListRosterBySession(ctx context.Context, sessionID string) ([]repository.RosterRow, error) {
	return m.roster, nil
}

func newSessionFixture(sessions *mockSessionRepo, participants *mockParticipantRepo) (*SessionService, *mockNotificationRepo) {
	if participants == nil {
		participants = &mockParticipantRepo{}
	}
	notifRepo := &mockNotificationRepo{}
	notifications := newNotificationService(notifRepo, nil)
	tutors := &mockTutorReader{tutors: map[string]models.Tutor{
		"tutor-user-1": {ID: "tut-1", UserID: "tutor-user-1"},
	}}
	svc := NewSessionService(sessions, tutors, participants, notifications, nil, zap.NewNop())
	return svc, notifRepo
}

func tutorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "tutor-user-1", Role: models.RoleTutor}
}

func officeClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "office-user-1", Role: models.RoleOffice}
}

func TestStartMovesScheduledToOngoing(t *testing.T) {
	sessions := &mockSessionRepo{sessions: map[string]models.Session{
		"sess-1": {ID: "sess-1", TutorID: "tut-1", Status: models.SessionStatusScheduled},
	}}
	svc, _ := newSessionFixture(sessions, nil)

	detail, err := svc.Start(context.Background(), tutorClaims(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusOngoing, detail.Status)
}

func TestStartRejectsOngoingSession(t *testing.T) {
	sessions := &mockSessionRepo{sessions: map[string]models.Session{
		"sess-1": {ID: "sess-1", TutorID: "tut-1", Status: models.SessionStatusOngoing},
	}}
	svc, _ := newSessionFixture(sessions, nil)

	_, err := svc.Start(context.Background(), tutorClaims(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestCompleteNotifiesParticipants(t *testing.T) {
	sessions := &mockSessionRepo{sessions: map[string]models.Session{
		"sess-1": {ID: "sess-1", TutorID: "tut-1", Status: models.SessionStatusOngoing},
	}}
	participants := &mockParticipantRepo{userIDs: []string{"user-1", "user-2"}}
	svc, notifRepo := newSessionFixture(sessions, participants)

	detail, err := svc.Complete(context.Background(), tutorClaims(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, detail.Status)
	require.Len(t, notifRepo.created, 2)
	for _, n := range notifRepo.created {
		assert.Equal(t, models.NotificationSessionCompleted, n.Type)
	}
}

func TestCompleteRejectsScheduledSession(t *testing.T) {
	sessions := &mockSessionRepo{sessions: map[string]models.Session{
		"sess-1": {ID: "sess-1", TutorID: "tut-1", Status: models.SessionStatusScheduled},
	}}
	svc, _ := newSessionFixture(sessions, nil)

	_, err := svc.Complete(context.Background(), tutorClaims(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestCancelReleasesEnrollmentsAndNotifies(t *testing.T) {
	sessions := &mockSessionRepo{
		sessions: map[string]models.Session{
			"sess-1": {ID: "sess-1", TutorID: "tut-1", Status: models.SessionStatusScheduled, EnrolledCount: 3},
		},
		affected: []string{"user-1", "user-2", "user-3"},
	}
	svc, notifRepo := newSessionFixture(sessions, nil)

	detail, err := svc.Cancel(context.Background(), tutorClaims(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, detail.Status)
	assert.Equal(t, 0, detail.EnrolledCount)
	require.Len(t, notifRepo.created, 3)
	for _, n := range notifRepo.created {
		assert.Equal(t, models.NotificationSessionCancelled, n.Type)
	}
}

func TestCancelAlreadyCancelled(t *testing.T) {
	sessions := &mockSessionRepo{sessions: map[string]models.Session{
		"sess-1": {ID: "sess-1", TutorID: "tut-1", Status: models.SessionStatusCancelled},
	}}
	svc, _ := newSessionFixture(sessions, nil)

	_, err := svc.Cancel(context.Background(), tutorClaims(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestSessionAccessForbiddenForOtherTutor(t *testing.T) {
	sessions := &mockSessionRepo{sessions: map[string]models.Session{
		"sess-1": {ID: "sess-1", TutorID: "tut-other", Status: models.SessionStatusScheduled},
	}}
	svc, _ := newSessionFixture(sessions, nil)

	_, err := svc.Start(context.Background(), tutorClaims(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestSessionAccessAllowsOffice(t *testing.T) {
	sessions := &mockSessionRepo{sessions: map[string]models.Session{
		"sess-1": {ID: "sess-1", TutorID: "tut-other", Status: models.SessionStatusScheduled},
	}}
	svc, _ := newSessionFixture(sessions, nil)

	_, err := svc.Cancel(context.Background(), officeClaims(), "sess-1")
	require.NoError(t, err)
}

func TestCreateSessionValidatesPayload(t *testing.T) {
	svc, _ := newSessionFixture(&mockSessionRepo{}, nil)

	_, err := svc.Create(context.Background(), "tutor-user-1", CreateSessionRequest{ClassCode: "PHYS-01"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateSessionStartsScheduled(t *testing.T) {
	svc, _ := newSessionFixture(&mockSessionRepo{}, nil)

	session, err := svc.Create(context.Background(), "tutor-user-1", CreateSessionRequest{
		ClassCode: "PHYS-01",
		SubjectID: "6f1e1bb0-93d4-4fd1-9f3e-0a81c51f3a10",
		Days:      "2-4",
		StartTime: "09:00",
		EndTime:   "11:00",
		Capacity:  15,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusScheduled, session.Status)
	assert.Equal(t, "tut-1", session.TutorID)
	assert.Equal(t, 0, session.EnrolledCount)
}

func TestUpdateScheduleRejectsCompletedSession(t *testing.T) {
	sessions := &mockSessionRepo{sessions: map[string]models.Session{
		"sess-1": {ID: "sess-1", TutorID: "tut-1", Status: models.SessionStatusCompleted},
	}}
	svc, _ := newSessionFixture(sessions, nil)

	_, err := svc.UpdateSchedule(context.Background(), tutorClaims(), "sess-1", UpdateScheduleRequest{
		Days: "3-5", StartTime: "14:00", EndTime: "16:00",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestRosterRequiresOwnership(t *testing.T) {
	sessions := &mockSessionRepo{sessions: map[string]models.Session{
		"sess-1": {ID: "sess-1", TutorID: "tut-other", Status: models.SessionStatusScheduled},
	}}
	participants := &mockParticipantRepo{roster: []repository.RosterRow{{StudentCode: "2152001"}}}
	svc, _ := newSessionFixture(sessions, participants)

	_, err := svc.Roster(context.Background(), tutorClaims(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	roster, err := svc.Roster(context.Background(), officeClaims(), "sess-1")
	require.NoError(t, err)
	require.Len(t, roster, 1)
}
