package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haulmont-ops/haulage-ledger/internal/shared"
)

const (
	nextAttempts = 3
	retryBackoff = 25 * time.Millisecond
)

// Service issues document numbers.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Next issues the next number for (tenant, kind, year). A non-positive year
// means the current calendar year. Transient commit conflicts are retried a
// bounded number of times before surfacing ErrCounterUnavailable; a duplicate
// number is never returned.
func (s *Service) Next(ctx context.Context, tenant string, kind Kind, year int) (int64, error) {
	if tenant == "" {
		return 0, shared.NewValidationError("tenant required")
	}
	if !kind.Valid() {
		return 0, shared.NewValidationError(fmt.Sprintf("unknown sequence kind %q", kind))
	}
	if year <= 0 {
		year = time.Now().UTC().Year()
	}

	var lastErr error
	for attempt := 0; attempt < nextAttempts; attempt++ {
		seq, err := s.repo.Next(ctx, tenant, kind, year)
		if err == nil {
			return seq, nil
		}
		lastErr = err
		if !errors.Is(err, shared.ErrCounterUnavailable) {
			return 0, err
		}
		s.logger.Warn("sequence counter conflict, retrying",
			slog.String("tenant", tenant),
			slog.String("kind", string(kind)),
			slog.Int("attempt", attempt+1))
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(retryBackoff << attempt):
		}
	}
	return 0, lastErr
}

// Resync scans already-issued formatted numbers matching prefix-year-(\d+),
// takes the maximum sequence found and raises the stored counter to it so the
// next issued number exceeds everything already out there. It never lowers an
// existing counter and is safe to run repeatedly.
func (s *Service) Resync(ctx context.Context, tenant string, kind Kind, year int, prefix string, existing []string) (int64, error) {
	if tenant == "" {
		return 0, shared.NewValidationError("tenant required")
	}
	if !kind.Valid() {
		return 0, shared.NewValidationError(fmt.Sprintf("unknown sequence kind %q", kind))
	}
	if year <= 0 {
		year = time.Now().UTC().Year()
	}
	if prefix == "" {
		prefix = defaultPrefix(kind)
	}

	maxSeen := int64(0)
	for _, formatted := range existing {
		if seq, ok := ParseIssued(prefix, year, formatted); ok && seq > maxSeen {
			maxSeen = seq
		}
	}
	if maxSeen == 0 {
		current, found, err := s.repo.Current(ctx, tenant, kind, year)
		if err != nil {
			return 0, err
		}
		if found {
			return current, nil
		}
		// Nothing issued yet; leave the counter to lazy creation.
		return 0, nil
	}

	result, err := s.repo.RaiseFloor(ctx, tenant, kind, year, maxSeen)
	if err != nil {
		return 0, err
	}
	s.logger.Info("sequence counter resynced",
		slog.String("tenant", tenant),
		slog.String("kind", string(kind)),
		slog.Int("year", year),
		slog.Int64("seq", result))
	return result, nil
}

func defaultPrefix(kind Kind) string {
	switch kind {
	case KindLoad:
		return "LD"
	case KindInvoice:
		return "INV"
	default:
		return DefaultSettlementPrefix
	}
}
