package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shardz/internal/model"
	"shardz/internal/repository"
	"shardz/internal/util"
)

// proofScreenshotTypes are the upload types accepted as payment evidence.
var proofScreenshotTypes = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".pdf": true,
}

// ProofService handles manually submitted payment proofs. Screenshots land in
// the shared bucket; approval settles the linked invoice through the billing
// service, mirroring a gateway verification.
type ProofService interface {
	// Submit stores the screenshot and records a pending proof for review.
	Submit(ctx context.Context, userID string, invoiceID, subscriptionID *string, txHash, filename string, screenshot io.Reader) (*model.PaymentProof, error)
	// Review approves or rejects a pending proof. Approval marks the linked
	// invoice paid.
	Review(ctx context.Context, proofID string, approve bool) error
	ListPending(ctx context.Context) ([]model.PaymentProof, error)
}

type proofService struct {
	payments repository.PaymentRepository
	billing  BillingService

	s3Client   *s3.Client
	bucketName string

	proofLogger zerolog.Logger
}

// NewProofService creates a new ProofService
func NewProofService(
	payments repository.PaymentRepository,
	billing BillingService,
	s3Client *s3.Client,
	bucketName string,
	logger zerolog.Logger,
) ProofService {
	return &proofService{
		payments:    payments,
		billing:     billing,
		s3Client:    s3Client,
		bucketName:  bucketName,
		proofLogger: logger.With().Str("service", "ProofService").Logger(),
	}
}

func (s *proofService) Submit(ctx context.Context, userID string, invoiceID, subscriptionID *string, txHash, filename string, screenshot io.Reader) (*model.PaymentProof, error) {
	if filename == "" || screenshot == nil {
		return nil, ErrNoFile
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !proofScreenshotTypes[ext] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, ext)
	}
	if invoiceID == nil && subscriptionID == nil {
		return nil, fmt.Errorf("%w: proof must reference an invoice or a subscription", ErrInvalidAmount)
	}

	key := fmt.Sprintf("proofs/%s/%s", userID, util.SanitizeFilename(filename))
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
		Body:   screenshot,
	})
	if err != nil {
		return nil, fmt.Errorf("uploading proof screenshot: %w", err)
	}

	proof := &model.PaymentProof{
		ID:             uuid.NewString(),
		UserID:         userID,
		InvoiceID:      invoiceID,
		SubscriptionID: subscriptionID,
		TxHash:         txHash,
		ScreenshotURL:  fmt.Sprintf("s3://%s/%s", s.bucketName, key),
		Status:         model.ProofPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.payments.CreateProof(ctx, proof); err != nil {
		return nil, err
	}

	s.proofLogger.Info().
		Str("user_id", userID).
		Str("proof_id", proof.ID).
		Msg("payment proof submitted")
	return proof, nil
}

func (s *proofService) Review(ctx context.Context, proofID string, approve bool) error {
	proof, err := s.payments.GetProofByID(ctx, proofID)
	if err != nil {
		return err
	}
	if proof == nil {
		return ErrNotFound
	}
	if proof.Status != model.ProofPending {
		return nil
	}

	status := model.ProofRejected
	if approve {
		status = model.ProofApproved
	}
	if err := s.payments.SetProofStatus(ctx, proofID, status); err != nil {
		return err
	}
	if approve && proof.InvoiceID != nil {
		return s.billing.MarkInvoicePaid(ctx, *proof.InvoiceID)
	}
	return nil
}

func (s *proofService) ListPending(ctx context.Context) ([]model.PaymentProof, error) {
	return s.payments.ListProofsByStatus(ctx, model.ProofPending)
}
