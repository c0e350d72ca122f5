package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shardz/internal/model"
	"shardz/internal/repository"
)

// Billing cycle constants. Postpaid subscriptions are invoiced per calendar
// month; prepaid extensions buy 30-day periods upfront (a fixed approximation,
// not calendar-accurate).
const (
	BillingPeriod = 30 * 24 * time.Hour
	// InvoiceDueIn is how long after generation an invoice falls due.
	InvoiceDueIn = 7 * 24 * time.Hour
	// SuspendGrace is how long past due an invoice may stay unpaid before the
	// subscription is suspended.
	SuspendGrace = 7 * 24 * time.Hour
	// PurgeGrace is how long past due the latest invoice of a suspended
	// subscription may stay unpaid before the tenant is reclaimed.
	PurgeGrace = 14 * 24 * time.Hour
)

// BillingService owns the subscription and invoice lifecycle. The sweep
// methods (GenerateMonthlyInvoices, SuspendOverdue, ExpiredSuspended) are
// driven by the billing cron; the rest serve the API.
type BillingService interface {
	// GenerateMonthlyInvoices cuts one invoice per active postpaid
	// subscription for the calendar month containing now, due in InvoiceDueIn.
	// Running it twice within the same month creates nothing new.
	GenerateMonthlyInvoices(ctx context.Context, now time.Time) ([]model.Invoice, error)
	// SuspendOverdue suspends subscriptions holding an invoice unpaid for
	// more than SuspendGrace past its due date.
	SuspendOverdue(ctx context.Context, now time.Time) ([]model.Subscription, error)
	// ExpiredSuspended returns suspended subscriptions whose latest invoice
	// has been due for more than PurgeGrace. Their tenants are eligible for
	// reclamation.
	ExpiredSuspended(ctx context.Context, now time.Time) ([]model.Subscription, error)

	// MarkInvoicePaid settles an invoice and reactivates its subscription if
	// the nonpayment had suspended it.
	MarkInvoicePaid(ctx context.Context, invoiceID string) error
	// DeleteSubscription removes a subscription record. Deleting an already
	// removed subscription is a no-op.
	DeleteSubscription(ctx context.Context, subscriptionID string) error
	// ExtendPrepaid converts a subscription to prepaid, paid through months
	// whole billing periods from now (or from the current paid-through date
	// if that is later).
	ExtendPrepaid(ctx context.Context, userID, subscriptionID string, months int) (*model.Subscription, error)
	// EnsurePrepaidSubscription returns the subscription covering subFor,
	// creating a prepaid one on the named plan when the key has none. A fresh
	// subscription starts with no coverage; an extension pays it forward. This
	// is the way back for a tenant whose subscription was reclaimed.
	EnsurePrepaidSubscription(ctx context.Context, userID, planName, subFor string) (*model.Subscription, error)
	// PrepaidExtensionPrice quotes the charge for extending a subscription.
	PrepaidExtensionPrice(ctx context.Context, userID, subscriptionID string, months int) (int64, error)

	GetInvoice(ctx context.Context, userID, invoiceID string) (*model.Invoice, error)
	ListInvoices(ctx context.Context, userID string) ([]model.Invoice, error)
	CountUnpaidInvoices(ctx context.Context, userID string) (int, error)
	GetSubscriptionForTenant(ctx context.Context, userID, subFor string) (*model.Subscription, error)
}

type billingService struct {
	subs     repository.SubscriptionRepository
	invoices repository.InvoiceRepository
	logs     repository.BillingLogRepository

	billingLogger zerolog.Logger
}

// NewBillingService creates a new BillingService
func NewBillingService(
	subs repository.SubscriptionRepository,
	invoices repository.InvoiceRepository,
	logs repository.BillingLogRepository,
	logger zerolog.Logger,
) BillingService {
	return &billingService{
		subs:          subs,
		invoices:      invoices,
		logs:          logs,
		billingLogger: logger.With().Str("service", "BillingService").Logger(),
	}
}

// monthBounds returns the calendar month containing now, in UTC.
func monthBounds(now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func (s *billingService) GenerateMonthlyInvoices(ctx context.Context, now time.Time) ([]model.Invoice, error) {
	subs, err := s.subs.ListActivePostpaid(ctx)
	if err != nil {
		return nil, err
	}

	periodStart, periodEnd := monthBounds(now)
	var created []model.Invoice
	for _, sub := range subs {
		exists, err := s.invoices.ExistsForPeriod(ctx, sub.ID, periodStart, periodEnd)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		plan, err := s.subs.GetPlanByID(ctx, sub.PlanID)
		if err != nil {
			return created, err
		}
		if plan == nil {
			s.billingLogger.Error().
				Str("subscription_id", sub.ID).
				Str("plan_id", sub.PlanID).
				Msg("subscription references a missing plan, skipped")
			continue
		}

		inv := model.Invoice{
			ID:             uuid.NewString(),
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			Amount:         plan.Price,
			Status:         model.InvoiceUnpaid,
			PeriodStart:    periodStart,
			PeriodEnd:      periodEnd,
			DueDate:        now.Add(InvoiceDueIn),
		}
		if err := s.invoices.Create(ctx, &inv); err != nil {
			return created, err
		}
		s.appendLog(ctx, "invoice_created",
			fmt.Sprintf("invoice %s for subscription %s (%s), amount %d", inv.ID, sub.ID, sub.SubFor, inv.Amount))
		created = append(created, inv)
	}
	return created, nil
}

func (s *billingService) SuspendOverdue(ctx context.Context, now time.Time) ([]model.Subscription, error) {
	overdue, err := s.invoices.ListUnpaidDueBefore(ctx, now.Add(-SuspendGrace))
	if err != nil {
		return nil, err
	}

	var suspended []model.Subscription
	seen := make(map[string]bool)
	for _, inv := range overdue {
		if seen[inv.SubscriptionID] {
			continue
		}
		seen[inv.SubscriptionID] = true

		sub, err := s.subs.GetByID(ctx, inv.SubscriptionID)
		if err != nil {
			return suspended, err
		}
		if sub == nil || sub.Status != model.SubscriptionActive {
			continue
		}
		if err := s.subs.Suspend(ctx, sub.ID); err != nil {
			return suspended, err
		}
		sub.Status = model.SubscriptionSuspended
		s.appendLog(ctx, "subscription_suspended",
			fmt.Sprintf("subscription %s (%s) suspended over invoice %s", sub.ID, sub.SubFor, inv.ID))
		suspended = append(suspended, *sub)
	}
	return suspended, nil
}

func (s *billingService) ExpiredSuspended(ctx context.Context, now time.Time) ([]model.Subscription, error) {
	subs, err := s.subs.ListSuspended(ctx)
	if err != nil {
		return nil, err
	}

	var expired []model.Subscription
	for _, sub := range subs {
		inv, err := s.invoices.LatestForSubscription(ctx, sub.ID)
		if err != nil {
			return expired, err
		}
		if inv == nil || inv.Status != model.InvoiceUnpaid {
			continue
		}
		if now.Sub(inv.DueDate) > PurgeGrace {
			expired = append(expired, sub)
		}
	}
	return expired, nil
}

func (s *billingService) MarkInvoicePaid(ctx context.Context, invoiceID string) error {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return err
	}
	if inv == nil {
		return ErrNotFound
	}
	if inv.Status == model.InvoicePaid {
		return nil
	}

	if err := s.invoices.MarkPaid(ctx, invoiceID); err != nil {
		return err
	}
	s.appendLog(ctx, "invoice_paid", fmt.Sprintf("invoice %s settled", invoiceID))

	sub, err := s.subs.GetByID(ctx, inv.SubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return nil
	}
	if sub.Status == model.SubscriptionSuspended {
		if err := s.subs.Reactivate(ctx, sub.ID); err != nil {
			return err
		}
		s.appendLog(ctx, "subscription_reactivated",
			fmt.Sprintf("subscription %s (%s) reactivated by invoice %s", sub.ID, sub.SubFor, invoiceID))
	}
	if sub.BillingType == model.BillingPostpaid {
		// Postpaid subscriptions track "paid through" even though billing is
		// in arrears.
		base := time.Now().UTC()
		if sub.EndDate != nil && sub.EndDate.After(base) {
			base = *sub.EndDate
		}
		if err := s.subs.SetEndDate(ctx, sub.ID, base.Add(BillingPeriod)); err != nil {
			return err
		}
	}
	return nil
}

func (s *billingService) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	if err := s.subs.Delete(ctx, subscriptionID); err != nil {
		return err
	}
	s.appendLog(ctx, "subscription_deleted", fmt.Sprintf("subscription %s removed", subscriptionID))
	return nil
}

func (s *billingService) ExtendPrepaid(ctx context.Context, userID, subscriptionID string, months int) (*model.Subscription, error) {
	if months < 1 {
		return nil, fmt.Errorf("%w: months must be positive", ErrInvalidAmount)
	}

	sub, err := s.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	if sub.UserID != userID {
		return nil, ErrForbidden
	}

	base := time.Now().UTC()
	if sub.EndDate != nil && sub.EndDate.After(base) {
		base = *sub.EndDate
	}
	end := base.Add(time.Duration(months) * BillingPeriod)

	plan, err := s.subs.GetPlanByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrNotFound
	}

	if err := s.subs.SetPrepaidEnd(ctx, sub.ID, end); err != nil {
		return nil, err
	}
	sub.BillingType = model.BillingPrepaid
	sub.EndDate = &end

	// The extension is settled upfront, so its invoice is born paid.
	inv := model.Invoice{
		ID:             uuid.NewString(),
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Amount:         plan.Price * int64(months),
		Status:         model.InvoicePaid,
		PeriodStart:    base,
		PeriodEnd:      end,
		DueDate:        base,
	}
	if err := s.invoices.Create(ctx, &inv); err != nil {
		return nil, err
	}

	s.appendLog(ctx, "prepaid_extended",
		fmt.Sprintf("subscription %s (%s) paid through %s", sub.ID, sub.SubFor, end.Format(time.RFC3339)))
	return sub, nil
}

func (s *billingService) EnsurePrepaidSubscription(ctx context.Context, userID, planName, subFor string) (*model.Subscription, error) {
	sub, err := s.subs.GetBySubFor(ctx, subFor)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		if sub.UserID != userID {
			return nil, ErrForbidden
		}
		return sub, nil
	}

	plan, err := s.subs.GetPlanByName(ctx, planName)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrNotFound
	}

	// Paid through now, meaning no coverage yet. The subsequent extension is
	// what buys time.
	now := time.Now().UTC()
	sub = &model.Subscription{
		ID:          uuid.NewString(),
		UserID:      userID,
		PlanID:      plan.ID,
		SubFor:      subFor,
		StartDate:   now,
		EndDate:     &now,
		BillingType: model.BillingPrepaid,
		Status:      model.SubscriptionActive,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	s.appendLog(ctx, "prepaid_subscribed",
		fmt.Sprintf("subscription %s created for %s on plan %s", sub.ID, subFor, plan.Name))
	return sub, nil
}

func (s *billingService) PrepaidExtensionPrice(ctx context.Context, userID, subscriptionID string, months int) (int64, error) {
	if months < 1 {
		return 0, fmt.Errorf("%w: months must be positive", ErrInvalidAmount)
	}

	sub, err := s.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return 0, err
	}
	if sub == nil {
		return 0, ErrNotFound
	}
	if sub.UserID != userID {
		return 0, ErrForbidden
	}

	plan, err := s.subs.GetPlanByID(ctx, sub.PlanID)
	if err != nil {
		return 0, err
	}
	if plan == nil {
		return 0, ErrNotFound
	}
	return plan.Price * int64(months), nil
}

func (s *billingService) GetInvoice(ctx context.Context, userID, invoiceID string) (*model.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrNotFound
	}
	if inv.UserID != userID {
		return nil, ErrForbidden
	}
	return inv, nil
}

func (s *billingService) ListInvoices(ctx context.Context, userID string) ([]model.Invoice, error) {
	return s.invoices.ListByUser(ctx, userID)
}

func (s *billingService) CountUnpaidInvoices(ctx context.Context, userID string) (int, error) {
	return s.invoices.CountUnpaidByUser(ctx, userID)
}

func (s *billingService) GetSubscriptionForTenant(ctx context.Context, userID, subFor string) (*model.Subscription, error) {
	sub, err := s.subs.GetBySubFor(ctx, subFor)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}
	if sub.UserID != userID {
		return nil, ErrForbidden
	}
	return sub, nil
}

// appendLog records a billing action. Log failures never abort the billing
// operation itself.
func (s *billingService) appendLog(ctx context.Context, action, details string) {
	if err := s.logs.Append(ctx, action, details); err != nil {
		s.billingLogger.Error().Err(err).Str("action", action).Msg("billing log append failed")
	}
}
