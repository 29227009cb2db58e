package dispatch_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-attendance/internal/dispatch"
	eventsdb "ms-attendance/internal/events/db"
	identitydb "ms-attendance/internal/identity/db"
	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
	vouchersdb "ms-attendance/internal/vouchers/db"
	vouchers "ms-attendance/internal/vouchers/service"
)

type sentMail struct {
	To       string
	EventID  string
	Vouchers []models.Voucher
}

type recordingSender struct {
	mu     sync.Mutex
	sent   []sentMail
	failTo string
}

func (s *recordingSender) SendVouchers(_ context.Context, holder models.HolderProjection, event *models.Event, list []models.Voucher) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if holder.Email == s.failTo {
		return errors.New("mailbox unavailable")
	}
	s.sent = append(s.sent, sentMail{To: holder.Email, EventID: event.ID, Vouchers: list})
	return nil
}

type recordingQueue struct {
	jobs []models.DispatchJob
}

func (q *recordingQueue) PublishDispatch(_ context.Context, job models.DispatchJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type fixture struct {
	events   *eventsdb.DB
	identity *identitydb.DB
	vouchers *vouchers.VoucherService
	sender   *recordingSender
	svc      *dispatch.Service
}

func setup(t *testing.T) *fixture {
	sqldb, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	for _, model := range []interface{}{
		(*models.Voucher)(nil),
		(*models.Event)(nil),
		(*models.Registration)(nil),
		(*models.User)(nil),
		(*models.LegacyAttendee)(nil),
	} {
		_, err := bunDB.NewCreateTable().Model(model).Exec(context.Background())
		require.NoError(t, err)
	}
	t.Cleanup(func() { bunDB.Close() })

	f := &fixture{
		events:   &eventsdb.DB{Bun: bunDB},
		identity: &identitydb.DB{Bun: bunDB},
		sender:   &recordingSender{},
	}
	f.vouchers = vouchers.NewVoucherService(&vouchersdb.DB{Bun: bunDB}, f.identity, f.events, logger.NewDiscardLogger())
	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	f.vouchers.Now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	f.svc = dispatch.NewService(f.vouchers, f.events, f.identity, f.sender, logger.NewDiscardLogger())
	return f
}

func (f *fixture) event(t *testing.T, id string) {
	require.NoError(t, f.events.CreateEvent(context.Background(), &models.Event{
		ID: id, Title: "Evento " + id, StartsAt: time.Now().UTC(), RequiresProvision: true, CreatedAt: time.Now().UTC(),
	}))
}

func (f *fixture) registrant(t *testing.T, eventID, userID, email string) {
	ctx := context.Background()
	user, err := f.identity.FindUser(ctx, userID)
	require.NoError(t, err)
	if user == nil {
		require.NoError(t, f.identity.CreateUser(ctx, &models.User{ID: userID, FullName: "User " + userID, Email: email, Role: models.RoleStudent}))
	}
	require.NoError(t, f.events.Enroll(ctx, &models.Registration{EventID: eventID, UserID: userID, CreatedAt: time.Now().UTC()}))
}

func TestSendEventVouchers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.event(t, "e1")
	f.registrant(t, "e1", "1001", "ana@example.com")
	f.registrant(t, "e1", "1002", "")
	f.registrant(t, "e1", "1003", "luis@example.com")
	_, err := f.vouchers.IssueForEvent(ctx, "e1")
	require.NoError(t, err)
	f.registrant(t, "e1", "1004", "late@example.com")

	report, err := f.svc.SendEventVouchers(ctx, "e1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 0, report.Errors)
	assert.Empty(t, report.ErrorDetails)
	assert.Equal(t, "Proceso finalizado. Emails enviados: 2. Errores: 0", report.Message)

	require.Len(t, f.sender.sent, 2)
	for _, mail := range f.sender.sent {
		assert.Equal(t, "e1", mail.EventID)
		assert.Len(t, mail.Vouchers, 2)
	}
}

func TestSendEventVouchersCountsFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.event(t, "e1")
	f.registrant(t, "e1", "1001", "ana@example.com")
	f.registrant(t, "e1", "1003", "luis@example.com")
	_, err := f.vouchers.IssueForEvent(ctx, "e1")
	require.NoError(t, err)
	f.sender.failTo = "luis@example.com"

	report, err := f.svc.SendEventVouchers(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, []string{"luis@example.com: mailbox unavailable"}, report.ErrorDetails)
}

func TestSendEventVouchersUnknownEvent(t *testing.T) {
	f := setup(t)
	_, err := f.svc.SendEventVouchers(context.Background(), "missing")
	assert.ErrorIs(t, err, dispatch.ErrEventNotFound)
}

func TestResendLegacy(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.event(t, "e1")
	f.event(t, "e2")

	_, err := f.identity.UpsertLegacy(ctx, &models.LegacyAttendee{ExternalID: "L-1", FullName: "Rosa", Email: "rosa@example.com"})
	require.NoError(t, err)
	_, _, err = f.vouchers.IssueSingle(ctx, models.LegacyHolder("L-1"), models.CategoryEntry, "")
	require.NoError(t, err)
	_, _, err = f.vouchers.IssueSingle(ctx, models.LegacyHolder("L-1"), models.CategoryEntry, "e1")
	require.NoError(t, err)
	_, _, err = f.vouchers.IssueSingle(ctx, models.LegacyHolder("L-1"), models.CategoryDefaultProvision, "e1")
	require.NoError(t, err)
	_, _, err = f.vouchers.IssueSingle(ctx, models.LegacyHolder("L-1"), models.CategoryEntry, "e2")
	require.NoError(t, err)

	to, err := f.svc.ResendLegacy(ctx, "L-1")
	require.NoError(t, err)
	assert.Equal(t, "rosa@example.com", to)

	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "e1", f.sender.sent[0].EventID)
	assert.Len(t, f.sender.sent[0].Vouchers, 3)
	for _, v := range f.sender.sent[0].Vouchers {
		assert.NotEqual(t, "e2", v.EventID)
	}
}

func TestResendLegacyRejects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.ResendLegacy(ctx, "nobody")
	assert.ErrorIs(t, err, dispatch.ErrAttendeeNotFound)

	_, err = f.identity.UpsertLegacy(ctx, &models.LegacyAttendee{ExternalID: "L-1", FullName: "Rosa"})
	require.NoError(t, err)
	_, err = f.svc.ResendLegacy(ctx, "L-1")
	assert.ErrorIs(t, err, dispatch.ErrNoVouchers)

	_, _, err = f.vouchers.IssueSingle(ctx, models.LegacyHolder("L-1"), models.CategoryEntry, "")
	require.NoError(t, err)
	_, err = f.svc.ResendLegacy(ctx, "L-1")
	assert.ErrorIs(t, err, dispatch.ErrNoEmail)

	_, err = f.identity.UpsertLegacy(ctx, &models.LegacyAttendee{ExternalID: "L-1", FullName: "Rosa", Email: "rosa@example.com"})
	require.NoError(t, err)
	_, err = f.svc.ResendLegacy(ctx, "L-1")
	assert.ErrorIs(t, err, dispatch.ErrNoEvent)

	assert.Empty(t, f.sender.sent)
}

func TestEnqueueAndHandleJob(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Enqueue(ctx, models.DispatchJob{EventID: "e1"}), dispatch.ErrNoQueue)

	queue := &recordingQueue{}
	f.svc.Queue = queue
	assert.ErrorIs(t, f.svc.Enqueue(ctx, models.DispatchJob{}), dispatch.ErrInvalidJob)
	require.NoError(t, f.svc.Enqueue(ctx, models.DispatchJob{EventID: "e1"}))
	require.Len(t, queue.jobs, 1)
	assert.False(t, queue.jobs[0].RequestedAt.IsZero())

	f.event(t, "e1")
	f.registrant(t, "e1", "1001", "ana@example.com")
	_, err := f.vouchers.IssueForEvent(ctx, "e1")
	require.NoError(t, err)

	require.NoError(t, f.svc.HandleJob(ctx, queue.jobs[0]))
	assert.Len(t, f.sender.sent, 1)
	assert.ErrorIs(t, f.svc.HandleJob(ctx, models.DispatchJob{LegacyID: "nobody"}), dispatch.ErrAttendeeNotFound)
	assert.ErrorIs(t, f.svc.HandleJob(ctx, models.DispatchJob{}), dispatch.ErrInvalidJob)
}
