package cron

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"shardz/internal/pubsub"
	"shardz/internal/repository"
	"shardz/internal/service"
)

// BillingCron drives the subscription lifecycle on a fixed interval. One
// sweep runs three phases in order: cut invoices for periods about to close,
// suspend subscriptions with long-overdue invoices, then reclaim tenants
// whose suspension has gone stale. Each phase is independently idempotent, so
// a crashed sweep is simply retried whole on the next tick.
type BillingCron struct {
	billing service.BillingService
	tenants service.TenantService
	email   service.EmailService
	users   repository.UserRepository

	publisher pubsub.Publisher
	topic     string

	interval time.Duration
	logger   zerolog.Logger
}

// NewBillingCron creates a new BillingCron
func NewBillingCron(
	billing service.BillingService,
	tenants service.TenantService,
	email service.EmailService,
	users repository.UserRepository,
	publisher pubsub.Publisher,
	topic string,
	interval time.Duration,
	logger zerolog.Logger,
) *BillingCron {
	return &BillingCron{
		billing:   billing,
		tenants:   tenants,
		email:     email,
		users:     users,
		publisher: publisher,
		topic:     topic,
		interval:  interval,
		logger:    logger.With().Str("component", "BillingCron").Logger(),
	}
}

// Run executes sweeps until the context is cancelled. The first sweep runs
// immediately.
func (c *BillingCron) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.RunOnce(ctx, time.Now().UTC())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx, time.Now().UTC())
		}
	}
}

// RunOnce performs a single sweep at the given instant. Phase errors are
// logged and do not stop later phases.
func (c *BillingCron) RunOnce(ctx context.Context, now time.Time) {
	start := time.Now()
	c.generateInvoices(ctx, now)
	c.suspendOverdue(ctx, now)
	c.purgeExpired(ctx, now)
	c.logger.Info().Dur("took", time.Since(start)).Msg("billing sweep finished")
}

func (c *BillingCron) generateInvoices(ctx context.Context, now time.Time) {
	created, err := c.billing.GenerateMonthlyInvoices(ctx, now)
	if err != nil {
		c.logger.Error().Err(err).Msg("invoice generation aborted")
	}
	for _, inv := range created {
		c.publishEvent(ctx, pubsub.BillingEvent{
			Action:         "invoice_created",
			UserID:         inv.UserID,
			SubscriptionID: inv.SubscriptionID,
			InvoiceID:      inv.ID,
		})
		if user, err := c.users.GetUserByID(ctx, inv.UserID); err == nil && user != nil {
			c.email.SendInvoiceNotice(user.Email, inv.Amount, inv.DueDate.Format("2006-01-02"))
		}
	}
	if len(created) > 0 {
		c.logger.Info().Int("count", len(created)).Msg("invoices generated")
	}
}

func (c *BillingCron) suspendOverdue(ctx context.Context, now time.Time) {
	suspended, err := c.billing.SuspendOverdue(ctx, now)
	if err != nil {
		c.logger.Error().Err(err).Msg("suspension phase aborted")
	}
	for _, sub := range suspended {
		c.publishEvent(ctx, pubsub.BillingEvent{
			Action:         "subscription_suspended",
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			SubFor:         sub.SubFor,
		})
		if user, err := c.users.GetUserByID(ctx, sub.UserID); err == nil && user != nil {
			c.email.SendSuspensionNotice(user.Email, sub.SubFor)
		}
	}
	if len(suspended) > 0 {
		c.logger.Warn().Int("count", len(suspended)).Msg("subscriptions suspended")
	}
}

func (c *BillingCron) purgeExpired(ctx context.Context, now time.Time) {
	expired, err := c.billing.ExpiredSuspended(ctx, now)
	if err != nil {
		c.logger.Error().Err(err).Msg("purge phase aborted")
		return
	}
	for _, sub := range expired {
		if err := c.tenants.PurgeTenant(ctx, sub.SubFor); err != nil {
			// Leave the subscription in place; the next sweep retries.
			c.logger.Error().Err(err).Str("sub_for", sub.SubFor).Msg("tenant purge failed")
			continue
		}
		// Purging a database tenant removes its subscription with it; for
		// anything else the record is cleared here.
		if err := c.billing.DeleteSubscription(ctx, sub.ID); err != nil {
			c.logger.Error().Err(err).Str("subscription_id", sub.ID).Msg("subscription cleanup failed")
		}
		c.publishEvent(ctx, pubsub.BillingEvent{
			Action:         "tenant_purged",
			UserID:         sub.UserID,
			SubscriptionID: sub.ID,
			SubFor:         sub.SubFor,
		})
	}
}

func (c *BillingCron) publishEvent(ctx context.Context, ev pubsub.BillingEvent) {
	if c.publisher == nil {
		return
	}
	if _, err := pubsub.PublishBillingEvent(ctx, c.publisher, c.topic, ev); err != nil {
		c.logger.Error().Err(err).Str("action", ev.Action).Msg("billing event publish failed")
	}
}
