package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shardz/internal/model"
	"shardz/internal/repository"
)

// PaystackService bridges invoices and prepaid extensions to the Paystack
// transaction API. Every initialized transaction is recorded as a pending
// payment; verification settles it exactly once.
type PaystackService interface {
	// InitializeInvoicePayment starts a gateway transaction for an unpaid
	// invoice and returns the checkout URL the caller should redirect to.
	InitializeInvoicePayment(ctx context.Context, userID, invoiceID string) (string, *model.Payment, error)
	// InitializeExtension starts a gateway transaction buying months prepaid
	// billing periods for a subscription.
	InitializeExtension(ctx context.Context, userID, subscriptionID string, months int) (string, *model.Payment, error)
	// VerifyPayment asks the gateway for the outcome of a transaction and
	// reconciles local state. Verifying an already-settled payment changes
	// nothing.
	VerifyPayment(ctx context.Context, userID, reference string) (*model.Payment, error)
}

type paystackService struct {
	client      *http.Client
	baseURL     string
	secret      string
	callbackURL string
	fxRate      int64

	payments repository.PaymentRepository
	users    repository.UserRepository
	billing  BillingService

	paystackLogger zerolog.Logger
}

// NewPaystackService creates a new PaystackService
func NewPaystackService(
	baseURL, secretKey, callbackURL string,
	timeout time.Duration,
	fxRate int64,
	payments repository.PaymentRepository,
	users repository.UserRepository,
	billing BillingService,
	logger zerolog.Logger,
) PaystackService {
	return &paystackService{
		client:         &http.Client{Timeout: timeout},
		baseURL:        baseURL,
		secret:         secretKey,
		callbackURL:    callbackURL,
		fxRate:         fxRate,
		payments:       payments,
		users:          users,
		billing:        billing,
		paystackLogger: logger.With().Str("service", "PaystackService").Logger(),
	}
}

type initializeRequest struct {
	Email       string `json:"email"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type initializeResponse struct {
	Status bool `json:"status"`
	Data   struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

type verifyResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status string `json:"status"`
		Amount int64  `json:"amount"`
	} `json:"data"`
}

func (s *paystackService) InitializeInvoicePayment(ctx context.Context, userID, invoiceID string) (string, *model.Payment, error) {
	inv, err := s.billing.GetInvoice(ctx, userID, invoiceID)
	if err != nil {
		return "", nil, err
	}
	if inv.Status == model.InvoicePaid {
		return "", nil, fmt.Errorf("%w: invoice already settled", ErrInvalidAmount)
	}

	amount := inv.Amount * s.fxRate
	authURL, reference, err := s.initialize(ctx, userID, amount)
	if err != nil {
		return "", nil, err
	}

	p := &model.Payment{
		ID:        uuid.NewString(),
		Reference: reference,
		UserID:    userID,
		InvoiceID: &inv.ID,
		Amount:    amount,
		Status:    model.PaymentPending,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return "", nil, err
	}
	return authURL, p, nil
}

func (s *paystackService) InitializeExtension(ctx context.Context, userID, subscriptionID string, months int) (string, *model.Payment, error) {
	price, err := s.billing.PrepaidExtensionPrice(ctx, userID, subscriptionID, months)
	if err != nil {
		return "", nil, err
	}

	amount := price * s.fxRate
	authURL, reference, err := s.initialize(ctx, userID, amount)
	if err != nil {
		return "", nil, err
	}

	p := &model.Payment{
		ID:             uuid.NewString(),
		Reference:      reference,
		UserID:         userID,
		SubscriptionID: &subscriptionID,
		Amount:         amount,
		Status:         model.PaymentPending,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return "", nil, err
	}
	return authURL, p, nil
}

func (s *paystackService) VerifyPayment(ctx context.Context, userID, reference string) (*model.Payment, error) {
	p, err := s.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPaymentNotFound
	}
	if p.UserID != userID {
		return nil, ErrForbidden
	}
	if p.Status != model.PaymentPending {
		return p, nil
	}

	var vr verifyResponse
	if err := s.call(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &vr); err != nil {
		return nil, err
	}

	switch {
	case vr.Status && vr.Data.Status == "success":
		settled, err := s.payments.MarkSuccess(ctx, reference)
		if err != nil {
			return nil, err
		}
		if !settled {
			// Lost the race with a concurrent verification; reconciliation
			// already ran.
			return s.payments.GetByReference(ctx, reference)
		}
		p.Status = model.PaymentSuccess
		if err := s.reconcile(ctx, p); err != nil {
			return nil, err
		}
	default:
		// Anything short of a confirmed success settles as failed; the user
		// can initiate a fresh attempt with a new reference.
		if err := s.payments.MarkFailed(ctx, reference); err != nil {
			return nil, err
		}
		p.Status = model.PaymentFailed
	}
	return p, nil
}

// reconcile applies a settled payment to the thing it bought.
func (s *paystackService) reconcile(ctx context.Context, p *model.Payment) error {
	switch {
	case p.InvoiceID != nil:
		return s.billing.MarkInvoicePaid(ctx, *p.InvoiceID)
	case p.SubscriptionID != nil:
		price, err := s.billing.PrepaidExtensionPrice(ctx, p.UserID, *p.SubscriptionID, 1)
		if err != nil {
			return err
		}
		// Payment amounts are stored in gateway currency units.
		months := int(p.Amount / (price * s.fxRate))
		if months < 1 {
			return fmt.Errorf("%w: payment %s amount %d below one period", ErrInvalidAmount, p.Reference, p.Amount)
		}
		_, err = s.billing.ExtendPrepaid(ctx, p.UserID, *p.SubscriptionID, months)
		return err
	default:
		s.paystackLogger.Warn().Str("reference", p.Reference).Msg("settled payment references nothing")
		return nil
	}
}

func (s *paystackService) initialize(ctx context.Context, userID string, amount int64) (string, string, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if user == nil {
		return "", "", ErrNotFound
	}

	// The reference is minted here, not adopted from the gateway, so the
	// payment row exists under a known key before the user ever reaches the
	// checkout page. The callback URL routes them back to the verify endpoint.
	reference := uuid.NewString()
	var ir initializeResponse
	body := initializeRequest{
		Email:       user.Email,
		Amount:      amount,
		Reference:   reference,
		CallbackURL: s.callbackURL,
	}
	if err := s.call(ctx, http.MethodPost, "/transaction/initialize", &body, &ir); err != nil {
		return "", "", err
	}
	if !ir.Status {
		return "", "", fmt.Errorf("%w: initialize rejected", ErrGateway)
	}
	return ir.Data.AuthorizationURL, reference, nil
}

// call performs one authenticated gateway request and decodes the response
// into out. Timeouts surface as ErrGatewayTimeout, every other transport or
// non-2xx failure as ErrGateway.
func (s *paystackService) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal gateway request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s %s", ErrGatewayTimeout, method, path)
		}
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.paystackLogger.Error().Int("status", resp.StatusCode).Str("path", path).Msg("gateway request rejected")
		return fmt.Errorf("%w: status %d on %s", ErrGateway, resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrGateway, err)
	}
	return nil
}
