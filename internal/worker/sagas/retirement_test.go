package sagas

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/architeacher/svc-device-manager/internal/domain"
	"github.com/architeacher/svc-device-manager/internal/infrastructure"
)

type (
	transition struct {
		status domain.SagaStatus
		step   string
		err    *string
	}

	fakeSagaRepo struct {
		inserted    []*domain.SagaState
		transitions []transition
	}

	fakeTenancy struct {
		email *string
		err   error
	}

	sentEmail struct {
		to      string
		subject string
		html    string
	}

	fakeEmailSender struct {
		err  error
		sent []sentEmail
	}

	fakeDeviceClient struct {
		err       error
		deviceIDs []string
		reasons   []string
	}
)

func (f *fakeSagaRepo) InsertInTx(_ context.Context, _ *sqlx.Tx, state *domain.SagaState) error {
	f.inserted = append(f.inserted, state)

	return nil
}

func (f *fakeSagaRepo) UpdateStatusInTx(_ context.Context, _ *sqlx.Tx, _ uuid.UUID, status domain.SagaStatus, step string, sagaErr *string, _ time.Time) error {
	f.transitions = append(f.transitions, transition{status: status, step: step, err: sagaErr})

	return nil
}

func (f *fakeTenancy) ResolveUserEmail(_ context.Context, _ string) (*string, error) {
	return f.email, f.err
}

func (f *fakeEmailSender) Send(_ context.Context, to, subject, html string) error {
	if f.err != nil {
		return f.err
	}

	f.sent = append(f.sent, sentEmail{to: to, subject: subject, html: html})

	return nil
}

func (f *fakeDeviceClient) Activate(_ context.Context, _ uuid.UUID, deviceID, reason string) error {
	f.deviceIDs = append(f.deviceIDs, deviceID)
	f.reasons = append(f.reasons, reason)

	return f.err
}

type sagaFixture struct {
	saga         *RetirementSaga
	sagaRepo     *fakeSagaRepo
	tenancy      *fakeTenancy
	emailSender  *fakeEmailSender
	deviceClient *fakeDeviceClient
}

func stringPtr(s string) *string {
	return &s
}

func newSagaFixture() *sagaFixture {
	sagaRepo := &fakeSagaRepo{}
	tenancy := &fakeTenancy{email: stringPtr("u@example.com")}
	emailSender := &fakeEmailSender{}
	deviceClient := &fakeDeviceClient{}

	return &sagaFixture{
		saga:         NewRetirementSaga(sagaRepo, tenancy, emailSender, deviceClient, infrastructure.NewMetrics(), infrastructure.NewNop()),
		sagaRepo:     sagaRepo,
		tenancy:      tenancy,
		emailSender:  emailSender,
		deviceClient: deviceClient,
	}
}

func newRetiredEvent(reason string) *domain.OutboxEvent {
	return &domain.OutboxEvent{
		ID:        uuid.New(),
		TenantID:  uuid.New(),
		EventType: domain.EventDeviceRetired,
		Payload: domain.DeviceEventPayload{
			DeviceID: uuid.NewString(),
			UserID:   uuid.NewString(),
			Reason:   reason,
		},
		CreatedAt: time.Now().UTC(),
	}
}

func statuses(transitions []transition) []domain.SagaStatus {
	result := make([]domain.SagaStatus, 0, len(transitions))
	for _, tr := range transitions {
		result = append(result, tr.status)
	}

	return result
}

func TestRun_HappyPathCompletes(t *testing.T) {
	t.Parallel()

	fixture := newSagaFixture()
	event := newRetiredEvent("broken screen")

	require.NoError(t, fixture.saga.Run(context.Background(), nil, event))

	require.Len(t, fixture.sagaRepo.inserted, 1)
	state := fixture.sagaRepo.inserted[0]
	assert.Equal(t, domain.SagaStatusRunning, state.Status)
	assert.Equal(t, domain.SagaTypeDeviceRetirement, state.SagaType)
	assert.Equal(t, event.TenantID, state.TenantID)

	assert.Equal(t, []domain.SagaStatus{domain.SagaStatusCompleted}, statuses(fixture.sagaRepo.transitions))

	require.Len(t, fixture.emailSender.sent, 1)
	email := fixture.emailSender.sent[0]
	assert.Equal(t, "u@example.com", email.to)
	assert.Equal(t, "Device retired", email.subject)
	assert.Contains(t, email.html, event.Payload.DeviceID)
	assert.Contains(t, email.html, "Reason: broken screen")

	assert.Empty(t, fixture.deviceClient.deviceIDs)
}

func TestRun_EscapesUserContent(t *testing.T) {
	t.Parallel()

	fixture := newSagaFixture()
	event := newRetiredEvent(`<script>alert("x")</script>`)

	require.NoError(t, fixture.saga.Run(context.Background(), nil, event))

	require.Len(t, fixture.emailSender.sent, 1)
	html := fixture.emailSender.sent[0].html
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "&lt;script&gt;")
}

func TestRun_MissingEmailTriggersCompensation(t *testing.T) {
	t.Parallel()

	fixture := newSagaFixture()
	fixture.tenancy.email = nil
	event := newRetiredEvent("broken screen")

	require.NoError(t, fixture.saga.Run(context.Background(), nil, event))

	assert.Equal(t,
		[]domain.SagaStatus{domain.SagaStatusCompensating, domain.SagaStatusCompensated},
		statuses(fixture.sagaRepo.transitions))

	compensating := fixture.sagaRepo.transitions[0]
	require.NotNil(t, compensating.err)
	assert.Contains(t, *compensating.err, "no email found")

	require.Len(t, fixture.deviceClient.deviceIDs, 1)
	assert.Equal(t, event.Payload.DeviceID, fixture.deviceClient.deviceIDs[0])
	assert.Equal(t,
		"Saga compensation: notification failed after retirement (original reason: broken screen)",
		fixture.deviceClient.reasons[0])
}

func TestRun_FailedResolutionTriggersCompensation(t *testing.T) {
	t.Parallel()

	fixture := newSagaFixture()
	fixture.tenancy.err = errors.New("tenancy returned 500")

	require.NoError(t, fixture.saga.Run(context.Background(), nil, newRetiredEvent("broken screen")))

	assert.Equal(t,
		[]domain.SagaStatus{domain.SagaStatusCompensating, domain.SagaStatusCompensated},
		statuses(fixture.sagaRepo.transitions))
	assert.Len(t, fixture.deviceClient.deviceIDs, 1)
}

func TestRun_FailedCompensationEndsFailed(t *testing.T) {
	t.Parallel()

	fixture := newSagaFixture()
	fixture.emailSender.err = errors.New("email provider down")
	fixture.deviceClient.err = errors.New("device service down")

	require.NoError(t, fixture.saga.Run(context.Background(), nil, newRetiredEvent("broken screen")))

	assert.Equal(t,
		[]domain.SagaStatus{domain.SagaStatusCompensating, domain.SagaStatusFailed},
		statuses(fixture.sagaRepo.transitions))

	failed := fixture.sagaRepo.transitions[1]
	require.NotNil(t, failed.err)
	assert.Contains(t, *failed.err, "device service down")
}

func TestRun_BreakerRefusalPropagatesBeforeCompensation(t *testing.T) {
	t.Parallel()

	fixture := newSagaFixture()
	fixture.tenancy.err = domain.ErrCircuitOpen

	err := fixture.saga.Run(context.Background(), nil, newRetiredEvent("broken screen"))

	require.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Len(t, fixture.sagaRepo.inserted, 1)
	assert.Empty(t, fixture.sagaRepo.transitions)
	assert.Empty(t, fixture.deviceClient.deviceIDs)
}

func TestRun_TruncatesLongErrors(t *testing.T) {
	t.Parallel()

	fixture := newSagaFixture()
	long := make([]byte, domain.MaxErrorLength*2)
	for i := range long {
		long[i] = 'x'
	}
	fixture.tenancy.err = errors.New(string(long))

	require.NoError(t, fixture.saga.Run(context.Background(), nil, newRetiredEvent("broken screen")))

	compensating := fixture.sagaRepo.transitions[0]
	require.NotNil(t, compensating.err)
	assert.LessOrEqual(t, len(*compensating.err), domain.MaxErrorLength)
}
