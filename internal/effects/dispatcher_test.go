package effects

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"payment-service/internal/domain"
)

type fakeMarker struct {
	calls   int
	lastDep bool
	err     error
}

func (f *fakeMarker) MarkPaid(ctx context.Context, id string, regType domain.RegistrationType, deposit bool) error {
	f.calls++
	f.lastDep = deposit
	return f.err
}

type fakeProvisioner struct {
	created   []domain.Contact
	extended  []string
	resynced  []string
	createErr error
}

func (f *fakeProvisioner) CreateAccount(ctx context.Context, contact domain.Contact) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, contact)
	return "new-user-1", nil
}

func (f *fakeProvisioner) ExtendMembership(ctx context.Context, userID string) error {
	f.extended = append(f.extended, userID)
	return nil
}

func (f *fakeProvisioner) Resync(ctx context.Context, userID string) error {
	f.resynced = append(f.resynced, userID)
	return nil
}

type fakeBackfiller struct {
	backfilled map[string]string
}

func (f *fakeBackfiller) SetUser(ctx context.Context, id, userID string) error {
	if f.backfilled == nil {
		f.backfilled = make(map[string]string)
	}
	f.backfilled[id] = userID
	return nil
}

type fakeSender struct {
	sent int
	err  error
}

func (f *fakeSender) SendEmail(ctx context.Context, to, subject, body string) error {
	f.sent++
	return f.err
}

type fakeLogSaver struct {
	logs []domain.EmailLog
}

func (f *fakeLogSaver) SaveLog(ctx context.Context, l domain.EmailLog) error {
	f.logs = append(f.logs, l)
	return nil
}

type fakePublisher struct {
	published int
	err       error
}

func (f *fakePublisher) PublishPaid(ctx context.Context, tx domain.Transaction) error {
	f.published++
	return f.err
}

type fixtures struct {
	marker     *fakeMarker
	identity   *fakeProvisioner
	backfiller *fakeBackfiller
	sender     *fakeSender
	logs       *fakeLogSaver
	publisher  *fakePublisher
	dispatcher *Dispatcher
}

func newFixtures() *fixtures {
	f := &fixtures{
		marker:     &fakeMarker{},
		identity:   &fakeProvisioner{},
		backfiller: &fakeBackfiller{},
		sender:     &fakeSender{},
		logs:       &fakeLogSaver{},
		publisher:  &fakePublisher{},
	}
	f.dispatcher = NewDispatcher(f.marker, f.identity, f.backfiller, f.sender, f.logs, f.publisher)
	f.dispatcher.emailRetryDelay = time.Millisecond
	return f
}

func eventTx() domain.Transaction {
	return domain.Transaction{
		ID:               "tx-1",
		Amount:           decimal.RequireFromString("25.00"),
		Description:      "Gala night ticket",
		ProductType:      domain.ProductEvent,
		PaymentStatus:    domain.StatusPaid,
		RegistrationID:   sql.NullString{String: "reg-1", Valid: true},
		RegistrationType: sql.NullString{String: string(domain.RegistrationEvent), Valid: true},
		ContactEmail:     sql.NullString{String: "member@student.org", Valid: true},
	}
}

func TestDispatchRunsAllEffects(t *testing.T) {
	f := newFixtures()

	f.dispatcher.Dispatch(context.Background(), eventTx(), false)

	if f.marker.calls != 1 {
		t.Errorf("expected registration marked paid once, got %d", f.marker.calls)
	}
	if f.sender.sent != 1 {
		t.Errorf("expected one confirmation email, got %d", f.sender.sent)
	}
	if f.publisher.published != 1 {
		t.Errorf("expected one event published, got %d", f.publisher.published)
	}
	if len(f.logs.logs) != 1 || f.logs.logs[0].Status != domain.EmailSent {
		t.Errorf("expected a sent email log, got %+v", f.logs.logs)
	}
}

func TestFailingEffectDoesNotBlockOthers(t *testing.T) {
	f := newFixtures()
	f.marker.err = errors.New("cms unavailable")

	outcomes := f.dispatcher.Dispatch(context.Background(), eventTx(), false)

	if f.sender.sent != 1 {
		t.Error("email must still be sent when the registration update fails")
	}
	if f.publisher.published != 1 {
		t.Error("event must still be published when the registration update fails")
	}

	var sawFailure bool
	for _, o := range outcomes {
		if o.Effect == "registration_update" && o.Err != nil {
			sawFailure = true
		}
	}
	if !sawFailure {
		t.Error("expected the registration failure recorded in the outcomes")
	}
}

func TestGuestProvisioningOrderAndBackfill(t *testing.T) {
	f := newFixtures()

	tx := domain.Transaction{
		ID:               "tx-2",
		Amount:           decimal.RequireFromString("30.00"),
		Description:      "Membership contribution",
		ProductType:      domain.ProductMembershipNew,
		PaymentStatus:    domain.StatusPaid,
		ContactEmail:     sql.NullString{String: "new@student.org", Valid: true},
		ContactFirstName: sql.NullString{String: "New", Valid: true},
		ContactLastName:  sql.NullString{String: "Member", Valid: true},
	}
	f.dispatcher.Dispatch(context.Background(), tx, false)

	if len(f.identity.created) != 1 {
		t.Fatalf("expected one account created, got %d", len(f.identity.created))
	}
	if len(f.identity.resynced) != 1 || f.identity.resynced[0] != "new-user-1" {
		t.Errorf("expected resync of the new account, got %v", f.identity.resynced)
	}
	if f.backfiller.backfilled["tx-2"] != "new-user-1" {
		t.Errorf("expected user id backfilled on the transaction, got %v", f.backfiller.backfilled)
	}
	if len(f.identity.extended) != 0 {
		t.Error("a guest signup must not extend an existing membership")
	}
}

func TestExistingMemberIsExtendedAndResynced(t *testing.T) {
	f := newFixtures()

	tx := domain.Transaction{
		ID:            "tx-3",
		Amount:        decimal.RequireFromString("30.00"),
		Description:   "Membership contribution",
		ProductType:   domain.ProductMembershipRenewal,
		PaymentStatus: domain.StatusPaid,
		UserID:        sql.NullString{String: "user-9", Valid: true},
		ContactEmail:  sql.NullString{String: "old@student.org", Valid: true},
	}
	f.dispatcher.Dispatch(context.Background(), tx, false)

	if len(f.identity.extended) != 1 || f.identity.extended[0] != "user-9" {
		t.Errorf("expected membership extension for user-9, got %v", f.identity.extended)
	}
	if len(f.identity.resynced) != 1 || f.identity.resynced[0] != "user-9" {
		t.Errorf("expected resync for user-9, got %v", f.identity.resynced)
	}
	if len(f.identity.created) != 0 {
		t.Error("an existing member must not get a second account")
	}
}

func TestGuestProvisioningFailureIsRecordedNotFatal(t *testing.T) {
	f := newFixtures()
	f.identity.createErr = errors.New("identity service timeout")

	tx := domain.Transaction{
		ID:            "tx-4",
		Amount:        decimal.RequireFromString("30.00"),
		Description:   "Membership contribution",
		ProductType:   domain.ProductMembershipNew,
		PaymentStatus: domain.StatusPaid,
		ContactEmail:  sql.NullString{String: "new@student.org", Valid: true},
	}
	outcomes := f.dispatcher.Dispatch(context.Background(), tx, false)

	var provisioning *Outcome
	for i := range outcomes {
		if outcomes[i].Effect == "provisioning" {
			provisioning = &outcomes[i]
		}
	}
	if provisioning == nil || provisioning.Err == nil {
		t.Fatal("expected a failed provisioning outcome")
	}
	if f.sender.sent != 1 {
		t.Error("confirmation email still goes out after a provisioning failure")
	}
}

func TestDepositFlagSelectsTripMilestone(t *testing.T) {
	f := newFixtures()

	tx := eventTx()
	tx.RegistrationType = sql.NullString{String: string(domain.RegistrationTrip), Valid: true}
	f.dispatcher.Dispatch(context.Background(), tx, true)

	if !f.marker.lastDep {
		t.Error("expected the deposit milestone to be marked")
	}
}

func TestFailedEmailIsLoggedAsFailed(t *testing.T) {
	f := newFixtures()
	f.sender.err = errors.New("smtp down")

	f.dispatcher.Dispatch(context.Background(), eventTx(), false)

	if f.sender.sent != 3 {
		t.Errorf("expected 3 send attempts, got %d", f.sender.sent)
	}
	if len(f.logs.logs) != 1 || f.logs.logs[0].Status != domain.EmailFailed {
		t.Errorf("expected a failed email log, got %+v", f.logs.logs)
	}
}
