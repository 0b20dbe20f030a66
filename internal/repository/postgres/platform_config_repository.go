package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/honeynil/CampusGigService/internal/models"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
)

// The platform configuration is a single row with id 1, seeded by migrations.
type PlatformConfigRepository struct {
	q Queryer
}

func NewPlatformConfigRepository(q Queryer) *PlatformConfigRepository {
	return &PlatformConfigRepository{q: q}
}

func (r *PlatformConfigRepository) Get(ctx context.Context) (cfg *models.PlatformConfig, err error) {
	ctx, span, start := startCall(ctx, "platform-repository", "GetPlatformConfig")
	defer func() { finishCall(span, "GetPlatformConfig", start, err) }()

	cfg = &models.PlatformConfig{}
	err = r.q.QueryRowContext(ctx, `SELECT fee, offer_bar_text FROM platform_config WHERE id = 1`).
		Scan(&cfg.Fee, &cfg.OfferBarText)
	if err != nil {
		slog.Error("failed to get platform config", "method", "Get", "error", err)
		return nil, fmt.Errorf("failed to get platform config: %w", err)
	}
	return cfg, nil
}

func (r *PlatformConfigRepository) Update(ctx context.Context, cfg *models.PlatformConfig) (err error) {
	ctx, span, start := startCall(ctx, "platform-repository", "UpdatePlatformConfig")
	defer func() { finishCall(span, "UpdatePlatformConfig", start, err) }()

	if cfg == nil {
		err = fmt.Errorf("%w: platform config is nil", pkgerrors.ErrInvalidInput)
		return err
	}
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO platform_config (id, fee, offer_bar_text) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET fee = EXCLUDED.fee, offer_bar_text = EXCLUDED.offer_bar_text`,
		cfg.Fee, cfg.OfferBarText)
	if err != nil {
		slog.Error("failed to update platform config", "method", "Update", "error", err)
		return fmt.Errorf("failed to update platform config: %w", err)
	}
	slog.Info("platform config updated", "method", "Update", "fee", cfg.Fee.String())
	return nil
}
