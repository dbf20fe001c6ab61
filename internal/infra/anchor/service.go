package anchor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"proofsy/internal/domain"
)

const DefaultTimeout = 10 * time.Second

// Receipt is what a provider reports for one anchoring attempt.
type Receipt struct {
	domain.AnchorResult
	Status    string
	ErrorCode string
}

type Provider interface {
	ProviderName() string
	Anchor(ctx context.Context, payload Payload) Receipt
}

// Service implements domain.LedgerAnchorClient on top of a single provider,
// bounding each call with a timeout and logging every attempt.
type Service struct {
	provider Provider
	attempts domain.AnchorAttemptRepository
	timeout  time.Duration
	clock    func() time.Time
	log      *logrus.Entry
}

func NewService(provider Provider, attempts domain.AnchorAttemptRepository, timeout time.Duration, log *logrus.Entry) (*Service, error) {
	if provider == nil {
		return nil, errors.New("provider is nil")
	}
	if provider.ProviderName() == "" {
		return nil, errors.New("provider id is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		provider: provider,
		attempts: attempts,
		timeout:  timeout,
		clock:    time.Now,
		log:      log.WithField("provider", provider.ProviderName()),
	}, nil
}

func (s *Service) ProviderName() string {
	return s.provider.ProviderName()
}

func (s *Service) Submit(ctx context.Context, record domain.AnchorRecord) (domain.AnchorResult, error) {
	if s == nil {
		return domain.AnchorResult{}, fmt.Errorf("%w: anchor service is nil", domain.ErrAnchorUnavailable)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := BuildPayload(record)
	if err != nil {
		return domain.AnchorResult{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	started := s.clock()
	providerCtx, cancel := context.WithTimeout(ctx, s.timeout)
	receipt := s.provider.Anchor(providerCtx, payload)
	cancel()
	if receipt.Provider == "" {
		receipt.Provider = s.provider.ProviderName()
	}
	if receipt.Status == "" {
		receipt.Status = domain.AnchorStatusAnchored
	}
	if providerCtx.Err() == context.DeadlineExceeded && receipt.Status != domain.AnchorStatusAnchored {
		receipt.ErrorCode = domain.AnchorErrorTimeout
	}
	if receipt.Status == domain.AnchorStatusAnchored && receipt.AnchorRef == "" {
		receipt.Status = domain.AnchorStatusFailed
		receipt.ErrorCode = domain.AnchorErrorProviderError
	}
	elapsed := s.clock().Sub(started)
	s.persistAttempt(ctx, record, receipt, elapsed)

	fields := logrus.Fields{
		"job_id":          record.JobID,
		"event_type":      record.EventType,
		"idempotency_key": record.IdempotencyKey,
		"payload_hash":    payload.HashHex,
		"duration_ms":     elapsed.Milliseconds(),
	}
	if receipt.Status != domain.AnchorStatusAnchored {
		s.log.WithFields(fields).WithField("error_code", receipt.ErrorCode).Warn("anchor failed")
		return domain.AnchorResult{}, fmt.Errorf("%w: %s %s", domain.ErrAnchorUnavailable, receipt.Provider, receipt.ErrorCode)
	}
	s.log.WithFields(fields).WithField("anchor_ref", receipt.AnchorRef).Info("anchored")
	return receipt.AnchorResult, nil
}

func (s *Service) persistAttempt(ctx context.Context, record domain.AnchorRecord, receipt Receipt, elapsed time.Duration) {
	if s.attempts == nil {
		return
	}
	attempt := domain.AnchorAttempt{
		JobID:                    record.JobID,
		EventType:                record.EventType,
		IdempotencyKey:           record.IdempotencyKey,
		Provider:                 receipt.Provider,
		Status:                   receipt.Status,
		ErrorCode:                receipt.ErrorCode,
		AnchorRef:                receipt.AnchorRef,
		Duration:                 elapsed,
		ProviderReceiptJSON:      cloneBytes(receipt.ProviderReceiptJSON),
		ProviderReceiptTruncated: receipt.ProviderReceiptTruncated,
		ProviderReceiptSizeBytes: receipt.ProviderReceiptSizeBytes,
		CreatedAt:                s.clock().UTC(),
	}
	if err := s.attempts.Append(ctx, attempt); err != nil {
		s.log.WithError(err).WithField("job_id", record.JobID).Warn("anchor attempt not recorded")
	}
}

// Failed returns a failed receipt for provider with code.
func Failed(provider, code string) Receipt {
	return Receipt{
		AnchorResult: domain.AnchorResult{Provider: provider},
		Status:       domain.AnchorStatusFailed,
		ErrorCode:    code,
	}
}

func cloneBytes(in []byte) []byte {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}
