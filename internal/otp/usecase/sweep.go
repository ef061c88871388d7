package usecase

import (
	"context"
	"log/slog"
)

// Sweep purges expired codes from the store.
func (s *Usecase) Sweep(ctx context.Context) (int, error) {
	ctx, span := s.startSpan(ctx, "Sweep")
	defer span.End()

	n, err := s.store.Sweep(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to store sweep", "removed", n, "error", err)
		return n, err
	}

	if n > 0 {
		slog.InfoContext(ctx, "expired codes swept", "removed", n)
	}
	return n, nil
}
