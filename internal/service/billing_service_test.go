package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"shardz/internal/model"
)

type fakeSubRepo struct {
	plans map[string]*model.Plan
	byID  map[string]*model.Subscription
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{
		plans: make(map[string]*model.Plan),
		byID:  make(map[string]*model.Subscription),
	}
}

func (f *fakeSubRepo) GetPlanByID(_ context.Context, planID string) (*model.Plan, error) {
	for _, p := range f.plans {
		if p.ID == planID {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeSubRepo) GetPlanByName(_ context.Context, name string) (*model.Plan, error) {
	return f.plans[name], nil
}

func (f *fakeSubRepo) GetByID(_ context.Context, id string) (*model.Subscription, error) {
	return f.byID[id], nil
}

func (f *fakeSubRepo) GetBySubFor(_ context.Context, subFor string) (*model.Subscription, error) {
	for _, s := range f.byID {
		if s.SubFor == subFor {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeSubRepo) Create(_ context.Context, sub *model.Subscription) error {
	f.byID[sub.ID] = sub
	return nil
}

func (f *fakeSubRepo) SetPrepaidEnd(_ context.Context, id string, end time.Time) error {
	s := f.byID[id]
	s.BillingType = model.BillingPrepaid
	s.EndDate = &end
	return nil
}

func (f *fakeSubRepo) SetEndDate(_ context.Context, id string, end time.Time) error {
	f.byID[id].EndDate = &end
	return nil
}

func (f *fakeSubRepo) ListActivePostpaid(_ context.Context) ([]model.Subscription, error) {
	var out []model.Subscription
	for _, s := range f.byID {
		if s.Status == model.SubscriptionActive && s.BillingType == model.BillingPostpaid {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSubRepo) ListSuspended(_ context.Context) ([]model.Subscription, error) {
	var out []model.Subscription
	for _, s := range f.byID {
		if s.Status == model.SubscriptionSuspended {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSubRepo) Suspend(_ context.Context, id string) error {
	if s := f.byID[id]; s != nil && s.Status == model.SubscriptionActive {
		s.Status = model.SubscriptionSuspended
	}
	return nil
}

func (f *fakeSubRepo) Reactivate(_ context.Context, id string) error {
	if s := f.byID[id]; s != nil {
		s.Status = model.SubscriptionActive
	}
	return nil
}

func (f *fakeSubRepo) Delete(_ context.Context, id string) error {
	delete(f.byID, id)
	return nil
}

type fakeInvoiceRepo struct {
	byID map[string]*model.Invoice
}

func newFakeInvoiceRepo() *fakeInvoiceRepo {
	return &fakeInvoiceRepo{byID: make(map[string]*model.Invoice)}
}

func (f *fakeInvoiceRepo) Create(_ context.Context, inv *model.Invoice) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	cp := *inv
	f.byID[inv.ID] = &cp
	return nil
}

func (f *fakeInvoiceRepo) GetByID(_ context.Context, id string) (*model.Invoice, error) {
	return f.byID[id], nil
}

func (f *fakeInvoiceRepo) ExistsForPeriod(_ context.Context, subscriptionID string, start, end time.Time) (bool, error) {
	for _, inv := range f.byID {
		if inv.SubscriptionID == subscriptionID && inv.PeriodStart.Equal(start) && inv.PeriodEnd.Equal(end) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeInvoiceRepo) MarkPaid(_ context.Context, id string) error {
	f.byID[id].Status = model.InvoicePaid
	return nil
}

func (f *fakeInvoiceRepo) ListUnpaidDueBefore(_ context.Context, cutoff time.Time) ([]model.Invoice, error) {
	var out []model.Invoice
	for _, inv := range f.byID {
		if inv.Status == model.InvoiceUnpaid && inv.DueDate.Before(cutoff) {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeInvoiceRepo) LatestForSubscription(_ context.Context, subscriptionID string) (*model.Invoice, error) {
	var latest *model.Invoice
	for _, inv := range f.byID {
		if inv.SubscriptionID != subscriptionID {
			continue
		}
		if latest == nil || inv.CreatedAt.After(latest.CreatedAt) {
			latest = inv
		}
	}
	return latest, nil
}

func (f *fakeInvoiceRepo) ListByUser(_ context.Context, userID string) ([]model.Invoice, error) {
	var out []model.Invoice
	for _, inv := range f.byID {
		if inv.UserID == userID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (f *fakeInvoiceRepo) CountUnpaidByUser(_ context.Context, userID string) (int, error) {
	n := 0
	for _, inv := range f.byID {
		if inv.UserID == userID && inv.Status == model.InvoiceUnpaid {
			n++
		}
	}
	return n, nil
}

type fakeBillingLogRepo struct {
	actions []string
}

func (f *fakeBillingLogRepo) Append(_ context.Context, action, _ string) error {
	f.actions = append(f.actions, action)
	return nil
}

func newBillingFixture() (*fakeSubRepo, *fakeInvoiceRepo, BillingService) {
	subs := newFakeSubRepo()
	subs.plans["database"] = &model.Plan{ID: "plan-db", Name: "database", Price: 500}
	invoices := newFakeInvoiceRepo()
	svc := NewBillingService(subs, invoices, &fakeBillingLogRepo{}, zerolog.Nop())
	return subs, invoices, svc
}

func TestGenerateMonthlyInvoicesIsIdempotent(t *testing.T) {
	subs, invoices, svc := newBillingFixture()
	subs.byID["s1"] = &model.Subscription{
		ID: "s1", UserID: "u1", PlanID: "plan-db", SubFor: "db_a",
		BillingType: model.BillingPostpaid, Status: model.SubscriptionActive,
	}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	first, err := svc.GenerateMonthlyInvoices(context.Background(), now)
	if err != nil {
		t.Fatalf("GenerateMonthlyInvoices returned error: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 invoice, got %d", len(first))
	}
	if first[0].Amount != 500 {
		t.Fatalf("invoice amount %d, want plan price 500", first[0].Amount)
	}
	if !first[0].PeriodStart.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) ||
		!first[0].PeriodEnd.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("period [%v, %v], want March 2026", first[0].PeriodStart, first[0].PeriodEnd)
	}
	if !first[0].DueDate.Equal(now.Add(InvoiceDueIn)) {
		t.Fatalf("due date %v, want %v", first[0].DueDate, now.Add(InvoiceDueIn))
	}

	// Later the same month: nothing new.
	second, err := svc.GenerateMonthlyInvoices(context.Background(), now.Add(9*24*time.Hour))
	if err != nil {
		t.Fatalf("second run returned error: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second run created %d invoices, want 0", len(second))
	}
	if len(invoices.byID) != 1 {
		t.Fatalf("repository holds %d invoices, want 1", len(invoices.byID))
	}
}

func TestGenerateMonthlyInvoicesSkipsInactive(t *testing.T) {
	subs, _, svc := newBillingFixture()
	subs.byID["s1"] = &model.Subscription{
		ID: "s1", UserID: "u1", PlanID: "plan-db", SubFor: "db_a",
		BillingType: model.BillingPostpaid, Status: model.SubscriptionSuspended,
	}
	end := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	subs.byID["s2"] = &model.Subscription{
		ID: "s2", UserID: "u1", PlanID: "plan-db", SubFor: "db_b",
		BillingType: model.BillingPrepaid, Status: model.SubscriptionActive, EndDate: &end,
	}

	created, err := svc.GenerateMonthlyInvoices(context.Background(), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GenerateMonthlyInvoices returned error: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("only active postpaid subscriptions are invoiced, got %d", len(created))
	}
}

func TestGenerateMonthlyInvoicesSkipsMissingPlan(t *testing.T) {
	subs, invoices, svc := newBillingFixture()
	subs.byID["orphan"] = &model.Subscription{
		ID: "orphan", UserID: "u1", PlanID: "plan-gone", SubFor: "db_orphan",
		BillingType: model.BillingPostpaid, Status: model.SubscriptionActive,
	}
	subs.byID["s1"] = &model.Subscription{
		ID: "s1", UserID: "u1", PlanID: "plan-db", SubFor: "db_a",
		BillingType: model.BillingPostpaid, Status: model.SubscriptionActive,
	}

	created, err := svc.GenerateMonthlyInvoices(context.Background(), time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("a missing plan must not abort the sweep: %v", err)
	}
	if len(created) != 1 || created[0].SubscriptionID != "s1" {
		t.Fatalf("expected only the healthy subscription invoiced, got %+v", created)
	}
	if len(invoices.byID) != 1 {
		t.Fatalf("repository holds %d invoices, want 1", len(invoices.byID))
	}
}

func TestSuspendOverdueHonorsGrace(t *testing.T) {
	subs, invoices, svc := newBillingFixture()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	subs.byID["late"] = &model.Subscription{ID: "late", UserID: "u1", PlanID: "plan-db", SubFor: "db_late", Status: model.SubscriptionActive, BillingType: model.BillingPostpaid}
	subs.byID["ok"] = &model.Subscription{ID: "ok", UserID: "u1", PlanID: "plan-db", SubFor: "db_ok", Status: model.SubscriptionActive, BillingType: model.BillingPostpaid}
	invoices.byID["i-late"] = &model.Invoice{ID: "i-late", UserID: "u1", SubscriptionID: "late", Status: model.InvoiceUnpaid, DueDate: now.Add(-8 * 24 * time.Hour)}
	invoices.byID["i-ok"] = &model.Invoice{ID: "i-ok", UserID: "u1", SubscriptionID: "ok", Status: model.InvoiceUnpaid, DueDate: now.Add(-6 * 24 * time.Hour)}

	suspended, err := svc.SuspendOverdue(context.Background(), now)
	if err != nil {
		t.Fatalf("SuspendOverdue returned error: %v", err)
	}
	if len(suspended) != 1 || suspended[0].ID != "late" {
		t.Fatalf("expected only the 8-days-late subscription suspended, got %+v", suspended)
	}
	if subs.byID["ok"].Status != model.SubscriptionActive {
		t.Fatal("subscription inside the grace window must stay active")
	}
	if subs.byID["late"].Status != model.SubscriptionSuspended {
		t.Fatal("overdue subscription was not suspended")
	}
}

func TestExpiredSuspendedEligibility(t *testing.T) {
	subs, invoices, svc := newBillingFixture()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	subs.byID["old"] = &model.Subscription{ID: "old", UserID: "u1", SubFor: "db_old", Status: model.SubscriptionSuspended}
	subs.byID["recent"] = &model.Subscription{ID: "recent", UserID: "u1", SubFor: "db_recent", Status: model.SubscriptionSuspended}
	invoices.byID["i-old"] = &model.Invoice{ID: "i-old", SubscriptionID: "old", Status: model.InvoiceUnpaid, DueDate: now.Add(-15 * 24 * time.Hour)}
	invoices.byID["i-recent"] = &model.Invoice{ID: "i-recent", SubscriptionID: "recent", Status: model.InvoiceUnpaid, DueDate: now.Add(-13 * 24 * time.Hour)}

	expired, err := svc.ExpiredSuspended(context.Background(), now)
	if err != nil {
		t.Fatalf("ExpiredSuspended returned error: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != "old" {
		t.Fatalf("expected only the 15-days-overdue subscription, got %+v", expired)
	}
}

func TestMarkInvoicePaidReactivatesSuspended(t *testing.T) {
	subs, invoices, svc := newBillingFixture()
	subs.byID["s1"] = &model.Subscription{ID: "s1", UserID: "u1", SubFor: "db_a", Status: model.SubscriptionSuspended}
	invoices.byID["i1"] = &model.Invoice{ID: "i1", UserID: "u1", SubscriptionID: "s1", Status: model.InvoiceUnpaid}

	if err := svc.MarkInvoicePaid(context.Background(), "i1"); err != nil {
		t.Fatalf("MarkInvoicePaid returned error: %v", err)
	}
	if invoices.byID["i1"].Status != model.InvoicePaid {
		t.Fatal("invoice not settled")
	}
	if subs.byID["s1"].Status != model.SubscriptionActive {
		t.Fatal("paying the invoice must reactivate the suspended subscription")
	}

	// Paying again is a no-op.
	if err := svc.MarkInvoicePaid(context.Background(), "i1"); err != nil {
		t.Fatalf("repeat MarkInvoicePaid returned error: %v", err)
	}
}

func TestExtendPrepaid(t *testing.T) {
	subs, _, svc := newBillingFixture()
	subs.byID["s1"] = &model.Subscription{ID: "s1", UserID: "u1", PlanID: "plan-db", SubFor: "db_a", BillingType: model.BillingPostpaid, Status: model.SubscriptionActive}

	if _, err := svc.ExtendPrepaid(context.Background(), "u1", "s1", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for zero months, got %v", err)
	}
	if _, err := svc.ExtendPrepaid(context.Background(), "intruder", "s1", 2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	before := time.Now().UTC()
	sub, err := svc.ExtendPrepaid(context.Background(), "u1", "s1", 2)
	if err != nil {
		t.Fatalf("ExtendPrepaid returned error: %v", err)
	}
	if sub.BillingType != model.BillingPrepaid || sub.EndDate == nil {
		t.Fatalf("expected prepaid with an end date, got %+v", sub)
	}
	want := before.Add(2 * BillingPeriod)
	if sub.EndDate.Before(want) || sub.EndDate.After(want.Add(time.Minute)) {
		t.Fatalf("end date %v not near %v", sub.EndDate, want)
	}

	// A second extension stacks on the current paid-through date.
	firstEnd := *sub.EndDate
	sub, err = svc.ExtendPrepaid(context.Background(), "u1", "s1", 1)
	if err != nil {
		t.Fatalf("second ExtendPrepaid returned error: %v", err)
	}
	if !sub.EndDate.Equal(firstEnd.Add(BillingPeriod)) {
		t.Fatalf("end date %v, want %v", sub.EndDate, firstEnd.Add(BillingPeriod))
	}
}

func TestExtendPrepaidRecordsPaidInvoice(t *testing.T) {
	subs, invoices, svc := newBillingFixture()
	subs.byID["s1"] = &model.Subscription{ID: "s1", UserID: "u1", PlanID: "plan-db", SubFor: "db_a", BillingType: model.BillingPostpaid, Status: model.SubscriptionActive}

	if _, err := svc.ExtendPrepaid(context.Background(), "u1", "s1", 3); err != nil {
		t.Fatalf("ExtendPrepaid returned error: %v", err)
	}
	if len(invoices.byID) != 1 {
		t.Fatalf("expected 1 invoice, got %d", len(invoices.byID))
	}
	for _, inv := range invoices.byID {
		if inv.Status != model.InvoicePaid {
			t.Fatalf("extension invoice status %q, want paid", inv.Status)
		}
		if inv.Amount != 1500 {
			t.Fatalf("extension invoice amount %d, want 1500", inv.Amount)
		}
	}
}

func TestEnsurePrepaidSubscriptionCreatesWhenAbsent(t *testing.T) {
	subs, _, svc := newBillingFixture()
	subs.plans["storage"] = &model.Plan{ID: "plan-st", Name: "storage", Price: 300}

	before := time.Now().UTC()
	sub, err := svc.EnsurePrepaidSubscription(context.Background(), "u1", "storage", "inst-1")
	if err != nil {
		t.Fatalf("EnsurePrepaidSubscription returned error: %v", err)
	}
	if sub.SubFor != "inst-1" || sub.PlanID != "plan-st" {
		t.Fatalf("subscription keyed wrong: %+v", sub)
	}
	if sub.BillingType != model.BillingPrepaid || sub.Status != model.SubscriptionActive {
		t.Fatalf("expected an active prepaid subscription, got %+v", sub)
	}
	if sub.EndDate == nil || sub.EndDate.Before(before) || sub.EndDate.After(time.Now().UTC().Add(time.Minute)) {
		t.Fatalf("a fresh subscription starts with no coverage, got end date %v", sub.EndDate)
	}
	if subs.byID[sub.ID] == nil {
		t.Fatal("subscription not persisted")
	}

	// The same key resolves to the same subscription afterwards.
	again, err := svc.EnsurePrepaidSubscription(context.Background(), "u1", "storage", "inst-1")
	if err != nil {
		t.Fatalf("repeat EnsurePrepaidSubscription returned error: %v", err)
	}
	if again.ID != sub.ID {
		t.Fatalf("expected the existing subscription back, got %s and %s", sub.ID, again.ID)
	}
}

func TestEnsurePrepaidSubscriptionGates(t *testing.T) {
	subs, _, svc := newBillingFixture()
	subs.byID["s1"] = &model.Subscription{ID: "s1", UserID: "owner", SubFor: "inst-1", Status: model.SubscriptionActive}

	if _, err := svc.EnsurePrepaidSubscription(context.Background(), "intruder", "database", "inst-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for a foreign key, got %v", err)
	}
	if _, err := svc.EnsurePrepaidSubscription(context.Background(), "u1", "no-such-plan", "inst-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for an unknown plan, got %v", err)
	}
}

// A tenant whose subscription was reclaimed by the sweep can be re-covered:
// a fresh subscription is opened for the key and a paid extension restores
// its coverage.
func TestReclaimedTenantCanResubscribe(t *testing.T) {
	subs, invoices, svc := newBillingFixture()
	subs.plans["storage"] = &model.Plan{ID: "plan-st", Name: "storage", Price: 300}
	subs.byID["s1"] = &model.Subscription{ID: "s1", UserID: "u1", PlanID: "plan-st", SubFor: "inst-1", Status: model.SubscriptionSuspended}
	if err := svc.DeleteSubscription(context.Background(), "s1"); err != nil {
		t.Fatalf("DeleteSubscription returned error: %v", err)
	}

	sub, err := svc.EnsurePrepaidSubscription(context.Background(), "u1", "storage", "inst-1")
	if err != nil {
		t.Fatalf("EnsurePrepaidSubscription returned error: %v", err)
	}
	before := time.Now().UTC()
	sub, err = svc.ExtendPrepaid(context.Background(), "u1", sub.ID, 2)
	if err != nil {
		t.Fatalf("ExtendPrepaid returned error: %v", err)
	}

	want := before.Add(2 * BillingPeriod)
	if sub.EndDate == nil || sub.EndDate.Before(want) || sub.EndDate.After(want.Add(time.Minute)) {
		t.Fatalf("end date %v not near %v", sub.EndDate, want)
	}
	paid := 0
	for _, inv := range invoices.byID {
		if inv.SubscriptionID == sub.ID && inv.Status == model.InvoicePaid {
			paid++
		}
	}
	if paid != 1 {
		t.Fatalf("expected one paid invoice for the restored coverage, got %d", paid)
	}
}

func TestMarkInvoicePaidPushesPostpaidEndDate(t *testing.T) {
	subs, invoices, svc := newBillingFixture()
	subs.byID["s1"] = &model.Subscription{ID: "s1", UserID: "u1", PlanID: "plan-db", SubFor: "db_a", BillingType: model.BillingPostpaid, Status: model.SubscriptionActive}
	invoices.byID["i1"] = &model.Invoice{ID: "i1", UserID: "u1", SubscriptionID: "s1", Status: model.InvoiceUnpaid}

	before := time.Now().UTC()
	if err := svc.MarkInvoicePaid(context.Background(), "i1"); err != nil {
		t.Fatalf("MarkInvoicePaid returned error: %v", err)
	}

	sub := subs.byID["s1"]
	if sub.EndDate == nil {
		t.Fatal("paying a postpaid invoice must push the paid-through date")
	}
	want := before.Add(BillingPeriod)
	if sub.EndDate.Before(want) || sub.EndDate.After(want.Add(time.Minute)) {
		t.Fatalf("paid-through %v not near %v", sub.EndDate, want)
	}
}

func TestPrepaidExtensionPrice(t *testing.T) {
	subs, _, svc := newBillingFixture()
	subs.byID["s1"] = &model.Subscription{ID: "s1", UserID: "u1", PlanID: "plan-db", SubFor: "db_a", Status: model.SubscriptionActive}

	price, err := svc.PrepaidExtensionPrice(context.Background(), "u1", "s1", 3)
	if err != nil {
		t.Fatalf("PrepaidExtensionPrice returned error: %v", err)
	}
	if price != 1500 {
		t.Fatalf("price %d, want 1500", price)
	}
}
