package vouchers_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-attendance/internal/logger"
	"ms-attendance/internal/models"
	vouchers "ms-attendance/internal/vouchers/service"
)

var errStoreDown = errors.New("connection refused")

func newMockedService() (*vouchers.VoucherService, *MockVoucherStore, *MockIdentityStore, *MockEventRegistry) {
	store := new(MockVoucherStore)
	identity := new(MockIdentityStore)
	registry := new(MockEventRegistry)
	svc := vouchers.NewVoucherService(store, identity, registry, logger.NewDiscardLogger())
	svc.Now = func() time.Time { return time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC) }
	return svc, store, identity, registry
}

func TestRedeemStoreFailure(t *testing.T) {
	svc, store, identity, _ := newMockedService()
	ctx := context.Background()

	voucher := models.NewVoucher("", models.UserHolder("1001"), "Almuerzo", time.Now().UTC())
	identity.On("FindUser", ctx, "1001").Return(&models.User{ID: "1001", FullName: "Ana"}, nil)
	store.On("MarkRedeemed", ctx, voucher.ID, mock.AnythingOfType("time.Time")).Return(false, errStoreDown)

	result, err := svc.Redeem(ctx, &voucher)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, vouchers.ErrCollaboratorUnavailable)
	assert.ErrorIs(t, err, errStoreDown)
	store.AssertExpectations(t)
}

func TestRedeemIdentityFailureLeavesVoucherUntouched(t *testing.T) {
	svc, store, identity, _ := newMockedService()
	ctx := context.Background()

	voucher := models.NewVoucher("", models.LegacyHolder("L-1"), models.CategoryEntry, time.Now().UTC())
	identity.On("FindLegacy", ctx, "L-1").Return(nil, errStoreDown)

	_, err := svc.Redeem(ctx, &voucher)
	assert.ErrorIs(t, err, vouchers.ErrCollaboratorUnavailable)
	store.AssertNotCalled(t, "MarkRedeemed", mock.Anything, mock.Anything, mock.Anything)
}

func TestRedeemCascadeFailureDoesNotFailRedemption(t *testing.T) {
	svc, store, identity, registry := newMockedService()
	ctx := context.Background()

	event := &models.Event{ID: "event-1", Title: "Congreso"}
	voucher := models.NewVoucher(event.ID, models.UserHolder("1001"), models.CategoryEntry, time.Now().UTC())
	identity.On("FindUser", ctx, "1001").Return(&models.User{ID: "1001", FullName: "Ana"}, nil)
	registry.On("GetEvent", ctx, event.ID).Return(event, nil)
	store.On("MarkRedeemed", ctx, voucher.ID, mock.AnythingOfType("time.Time")).Return(true, nil)
	registration := &models.Registration{ID: 7, EventID: event.ID, UserID: "1001"}
	registry.On("GetRegistration", ctx, event.ID, "1001").Return(registration, nil)
	registry.On("SetAttended", ctx, registration).Return(errStoreDown)

	result, err := svc.Redeem(ctx, &voucher)
	require.NoError(t, err)
	assert.Equal(t, vouchers.OutcomeRedeemed, result.Outcome)
	registry.AssertExpectations(t)
}

func TestRedeemSkipsAttendedRegistration(t *testing.T) {
	svc, store, identity, registry := newMockedService()
	ctx := context.Background()

	voucher := models.NewVoucher("event-1", models.UserHolder("1001"), models.CategoryEntry, time.Now().UTC())
	identity.On("FindUser", ctx, "1001").Return(nil, nil)
	registry.On("GetEvent", ctx, "event-1").Return(nil, nil)
	store.On("MarkRedeemed", ctx, voucher.ID, mock.AnythingOfType("time.Time")).Return(true, nil)
	registry.On("GetRegistration", ctx, "event-1", "1001").Return(&models.Registration{ID: 1, Attended: true}, nil)

	result, err := svc.Redeem(ctx, &voucher)
	require.NoError(t, err)
	assert.Equal(t, models.UnknownProjection(), result.Holder)
	registry.AssertNotCalled(t, "SetAttended", mock.Anything, mock.Anything)
}

func TestScanStoreFailure(t *testing.T) {
	svc, store, _, _ := newMockedService()
	ctx := context.Background()

	store.On("ListVouchersByIdentity", ctx, "1001").Return(nil, errStoreDown)

	result, err := svc.Scan(ctx, "1001")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, vouchers.ErrCollaboratorUnavailable)
}

func TestScanPublishFailureIsNotFatal(t *testing.T) {
	svc, store, _, _ := newMockedService()
	ctx := context.Background()
	publisher := new(MockPublisher)
	svc.Publisher = publisher

	voucher := models.NewVoucher("", models.UnknownHolder(), models.CategoryEntry, time.Now().UTC())
	store.On("GetVoucherByID", ctx, voucher.ID).Return(&voucher, nil)
	store.On("MarkRedeemed", ctx, voucher.ID, mock.AnythingOfType("time.Time")).Return(true, nil)
	publisher.On("PublishRedemption", ctx, mock.AnythingOfType("models.VoucherRedeemedEvent")).Return(errStoreDown)

	result, err := svc.Scan(ctx, voucher.ID)
	require.NoError(t, err)
	assert.Equal(t, vouchers.OutcomeRedeemed, result.Outcome)
	publisher.AssertExpectations(t)
}

func TestIssueForEventLock(t *testing.T) {
	svc, store, _, registry := newMockedService()
	ctx := context.Background()
	lock := new(MockIssuanceLock)
	svc.Lock = lock

	registry.On("GetEvent", ctx, "event-1").Return(&models.Event{ID: "event-1"}, nil)
	registry.On("ListRegistrations", ctx, "event-1").Return([]models.Registration{{EventID: "event-1", UserID: "1001"}}, nil)
	lock.On("Acquire", ctx, "event-1").Return("token-1", true, nil).Once()
	lock.On("Release", mock.Anything, "event-1", "token-1").Return(nil).Once()
	store.On("InsertVoucherIfAbsent", ctx, mock.AnythingOfType("*models.Voucher")).Return(true, nil).Once()

	created, err := svc.IssueForEvent(ctx, "event-1")
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	lock.AssertExpectations(t)
}

func TestIssueForEventLockHeldElsewhere(t *testing.T) {
	svc, store, _, registry := newMockedService()
	ctx := context.Background()
	lock := new(MockIssuanceLock)
	svc.Lock = lock

	registry.On("GetEvent", ctx, "event-1").Return(&models.Event{ID: "event-1"}, nil)
	registry.On("ListRegistrations", ctx, "event-1").Return([]models.Registration{{EventID: "event-1", UserID: "1001"}}, nil)
	lock.On("Acquire", ctx, "event-1").Return("", false, nil)
	store.On("InsertVoucherIfAbsent", ctx, mock.AnythingOfType("*models.Voucher")).Return(false, nil).Once()

	created, err := svc.IssueForEvent(ctx, "event-1")
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	lock.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssueForEventLockUnavailable(t *testing.T) {
	svc, store, _, registry := newMockedService()
	ctx := context.Background()
	lock := new(MockIssuanceLock)
	svc.Lock = lock

	registry.On("GetEvent", ctx, "event-1").Return(&models.Event{ID: "event-1"}, nil)
	lock.On("Acquire", ctx, "event-1").Return("", false, errStoreDown)
	registry.On("ListRegistrations", ctx, "event-1").Return([]models.Registration{{EventID: "event-1", UserID: "1001"}}, nil)
	store.On("InsertVoucherIfAbsent", ctx, mock.AnythingOfType("*models.Voucher")).Return(true, nil).Once()

	created, err := svc.IssueForEvent(ctx, "event-1")
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	lock.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestIssueForEventInsertFailure(t *testing.T) {
	svc, store, _, registry := newMockedService()
	ctx := context.Background()

	registry.On("GetEvent", ctx, "event-1").Return(&models.Event{ID: "event-1", RequiresProvision: true}, nil)
	registry.On("ListRegistrations", ctx, "event-1").Return([]models.Registration{{EventID: "event-1", UserID: "1001"}}, nil)
	store.On("InsertVoucherIfAbsent", ctx, mock.AnythingOfType("*models.Voucher")).Return(true, nil).Once()
	store.On("InsertVoucherIfAbsent", ctx, mock.AnythingOfType("*models.Voucher")).Return(false, errStoreDown).Once()

	created, err := svc.IssueForEvent(ctx, "event-1")
	assert.ErrorIs(t, err, vouchers.ErrCollaboratorUnavailable)
	assert.Equal(t, 1, created)
}
