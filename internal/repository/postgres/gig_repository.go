package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/honeynil/CampusGigService/internal/models"
	pkgerrors "github.com/honeynil/CampusGigService/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const gigColumns = `id, requester_id, requester_name, requester_phone, requester_email,
	deliverer_id, deliverer_name, deliverer_phone, deliverer_email,
	parcel_info, pickup_block, destination_block, note, size, is_urgent, price, status, otp,
	acceptance_selfie_url, delivery_deadline, posted_at, platform_fee, completed_at,
	requester_rating, requester_comments, deliverer_rating, deliverer_comments`

type GigRepository struct {
	q Queryer
}

func NewGigRepository(q Queryer) *GigRepository {
	return &GigRepository{q: q}
}

func scanGig(row rowScanner) (*models.Gig, error) {
	var (
		gig                                        models.Gig
		delivID, delivName, delivPhone, delivEmail sql.NullString
		completedAt                                sql.NullTime
		requesterRating, delivererRating           sql.NullInt32
	)
	err := row.Scan(
		&gig.ID, &gig.Requester.ID, &gig.Requester.Name, &gig.Requester.Phone, &gig.Requester.Email,
		&delivID, &delivName, &delivPhone, &delivEmail,
		&gig.ParcelInfo, &gig.PickupBlock, &gig.DestinationBlock, &gig.Note, &gig.Size, &gig.IsUrgent,
		&gig.Price, &gig.Status, &gig.OTP, &gig.AcceptanceSelfieURL, &gig.DeliveryDeadline, &gig.PostedAt,
		&gig.PlatformFee, &completedAt, &requesterRating, &gig.RequesterComments,
		&delivererRating, &gig.DelivererComments,
	)
	if err != nil {
		return nil, err
	}
	if delivID.Valid {
		gig.Deliverer = &models.GigUser{ID: delivID.String, Name: delivName.String, Phone: delivPhone.String, Email: delivEmail.String}
	}
	if completedAt.Valid {
		t := completedAt.Time
		gig.CompletedAt = &t
	}
	if requesterRating.Valid {
		v := requesterRating.Int32
		gig.RequesterRating = &v
	}
	if delivererRating.Valid {
		v := delivererRating.Int32
		gig.DelivererRating = &v
	}
	return &gig, nil
}

func (r *GigRepository) Create(ctx context.Context, gig *models.Gig) (err error) {
	ctx, span, start := startCall(ctx, "gig-repository", "CreateGig")
	defer func() { finishCall(span, "CreateGig", start, err) }()

	if gig == nil {
		err = pkgerrors.ErrNilGig
		slog.Error("failed to create gig", "method", "Create", "error", err)
		return err
	}
	if !gig.Price.IsPositive() {
		err = pkgerrors.ErrInvalidAmount
		slog.Error("gig price must be positive", "method", "Create", "price", gig.Price.String())
		return err
	}
	if gig.ID == "" {
		gig.ID = uuid.NewString()
	}
	span.SetAttributes(attribute.String("gig_id", gig.ID), attribute.String("requester_id", gig.Requester.ID))

	query := `INSERT INTO gigs (id, requester_id, requester_name, requester_phone, requester_email,
		parcel_info, pickup_block, destination_block, note, size, is_urgent, price, status, otp,
		delivery_deadline, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err = r.q.ExecContext(ctx, query,
		gig.ID, gig.Requester.ID, gig.Requester.Name, gig.Requester.Phone, gig.Requester.Email,
		gig.ParcelInfo, gig.PickupBlock, gig.DestinationBlock, gig.Note, gig.Size, gig.IsUrgent,
		gig.Price, gig.Status, gig.OTP, gig.DeliveryDeadline, gig.PostedAt,
	)
	if err != nil {
		slog.Error("failed to create gig", "method", "Create", "gig_id", gig.ID, "error", err)
		return fmt.Errorf("failed to create gig: %w", err)
	}

	slog.Info("gig created", "method", "Create", "gig_id", gig.ID, "requester_id", gig.Requester.ID)
	return nil
}

func (r *GigRepository) getOne(ctx context.Context, method, query, id string) (gig *models.Gig, err error) {
	ctx, span, start := startCall(ctx, "gig-repository", method)
	span.SetAttributes(attribute.String("gig_id", id))
	defer func() { finishCall(span, method, start, err) }()

	gig, err = scanGig(r.q.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		err = pkgerrors.ErrGigNotFound
		return nil, err
	}
	if err != nil {
		slog.Error("failed to get gig", "method", method, "gig_id", id, "error", err)
		return nil, fmt.Errorf("failed to get gig: %w", err)
	}
	return gig, nil
}

func (r *GigRepository) GetByID(ctx context.Context, id string) (*models.Gig, error) {
	return r.getOne(ctx, "GetGigByID", `SELECT `+gigColumns+` FROM gigs WHERE id = $1`, id)
}

func (r *GigRepository) GetByIDForUpdate(ctx context.Context, id string) (*models.Gig, error) {
	return r.getOne(ctx, "GetGigByIDForUpdate", `SELECT `+gigColumns+` FROM gigs WHERE id = $1 FOR UPDATE`, id)
}

func (r *GigRepository) list(ctx context.Context, method, query string, args ...any) (gigs []models.Gig, err error) {
	ctx, span, start := startCall(ctx, "gig-repository", method)
	defer func() { finishCall(span, method, start, err) }()

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Error("failed to list gigs", "method", method, "error", err)
		return nil, fmt.Errorf("failed to list gigs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		gig, scanErr := scanGig(rows)
		if scanErr != nil {
			err = fmt.Errorf("failed to scan gig: %w", scanErr)
			return nil, err
		}
		gigs = append(gigs, *gig)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate gigs: %w", err)
	}
	return gigs, nil
}

func (r *GigRepository) ListByStatus(ctx context.Context, status models.GigStatus) ([]models.Gig, error) {
	return r.list(ctx, "ListGigsByStatus",
		`SELECT `+gigColumns+` FROM gigs WHERE status = $1 ORDER BY posted_at DESC`, status)
}

func (r *GigRepository) ListByUser(ctx context.Context, userID string) ([]models.Gig, error) {
	return r.list(ctx, "ListGigsByUser",
		`SELECT `+gigColumns+` FROM gigs WHERE requester_id = $1 OR deliverer_id = $1 ORDER BY posted_at DESC`, userID)
}

func (r *GigRepository) ListOverdueForUpdate(ctx context.Context, now time.Time) ([]models.Gig, error) {
	return r.list(ctx, "ListOverdueGigs",
		`SELECT `+gigColumns+` FROM gigs WHERE status = 'OPEN' AND delivery_deadline < $1 ORDER BY delivery_deadline FOR UPDATE SKIP LOCKED`, now)
}

func (r *GigRepository) UpdateStatus(ctx context.Context, gig *models.Gig, from models.GigStatus) (err error) {
	ctx, span, start := startCall(ctx, "gig-repository", "UpdateGigStatus")
	defer func() {
		if stderrors.Is(err, pkgerrors.ErrInvalidState) {
			finishCall(span, "UpdateGigStatus", start, nil)
			return
		}
		finishCall(span, "UpdateGigStatus", start, err)
	}()

	if gig == nil {
		err = pkgerrors.ErrNilGig
		return err
	}
	span.SetAttributes(
		attribute.String("gig_id", gig.ID),
		attribute.String("from", string(from)),
		attribute.String("to", string(gig.Status)),
	)

	var deliverer models.GigUser
	if gig.Deliverer != nil {
		deliverer = *gig.Deliverer
	}
	query := `UPDATE gigs SET status = $1, deliverer_id = $2, deliverer_name = $3, deliverer_phone = $4,
		deliverer_email = $5, acceptance_selfie_url = $6, platform_fee = $7, completed_at = $8
		WHERE id = $9 AND status = $10`
	res, err := r.q.ExecContext(ctx, query,
		gig.Status, nullString(deliverer.ID), nullString(deliverer.Name), nullString(deliverer.Phone),
		nullString(deliverer.Email), gig.AcceptanceSelfieURL, gig.PlatformFee, nullTime(gig.CompletedAt),
		gig.ID, from,
	)
	if err != nil {
		slog.Error("failed to update gig status", "method", "UpdateStatus", "gig_id", gig.ID, "error", err)
		return fmt.Errorf("failed to update gig status: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		slog.Warn("gig status changed concurrently", "method", "UpdateStatus", "gig_id", gig.ID, "expected", from)
		err = pkgerrors.ErrInvalidState
		return err
	}

	slog.Info("gig status updated", "method", "UpdateStatus", "gig_id", gig.ID, "from", from, "to", gig.Status)
	return nil
}

func (r *GigRepository) DeleteOpen(ctx context.Context, id string) (err error) {
	ctx, span, start := startCall(ctx, "gig-repository", "DeleteOpenGig")
	span.SetAttributes(attribute.String("gig_id", id))
	defer func() { finishCall(span, "DeleteOpenGig", start, err) }()

	res, err := r.q.ExecContext(ctx, `DELETE FROM gigs WHERE id = $1 AND status = 'OPEN'`, id)
	if err != nil {
		slog.Error("failed to delete gig", "method", "DeleteOpen", "gig_id", id, "error", err)
		return fmt.Errorf("failed to delete gig: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.ErrInvalidState
	}
	slog.Info("gig deleted", "method", "DeleteOpen", "gig_id", id)
	return nil
}

func (r *GigRepository) SaveFeedback(ctx context.Context, gig *models.Gig) (err error) {
	ctx, span, start := startCall(ctx, "gig-repository", "SaveGigFeedback")
	defer func() { finishCall(span, "SaveGigFeedback", start, err) }()

	if gig == nil {
		err = pkgerrors.ErrNilGig
		return err
	}
	query := `UPDATE gigs SET requester_rating = $1, requester_comments = $2, deliverer_rating = $3,
		deliverer_comments = $4 WHERE id = $5 AND status = 'COMPLETED'`
	res, err := r.q.ExecContext(ctx, query,
		nullInt32(gig.RequesterRating), gig.RequesterComments,
		nullInt32(gig.DelivererRating), gig.DelivererComments, gig.ID,
	)
	if err != nil {
		slog.Error("failed to save feedback", "method", "SaveFeedback", "gig_id", gig.ID, "error", err)
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return pkgerrors.ErrInvalidState
	}
	return nil
}

func (r *GigRepository) SumPlatformFees(ctx context.Context) (total decimal.Decimal, err error) {
	ctx, span, start := startCall(ctx, "gig-repository", "SumPlatformFees")
	defer func() { finishCall(span, "SumPlatformFees", start, err) }()

	err = r.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(platform_fee), 0) FROM gigs WHERE status = 'COMPLETED'`).Scan(&total)
	if err != nil {
		slog.Error("failed to sum platform fees", "method", "SumPlatformFees", "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum platform fees: %w", err)
	}
	return total, nil
}

func (r *GigRepository) CountOpenByRequester(ctx context.Context, userID string) (count int, err error) {
	ctx, span, start := startCall(ctx, "gig-repository", "CountOpenGigs")
	defer func() { finishCall(span, "CountOpenGigs", start, err) }()

	err = r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM gigs WHERE requester_id = $1 AND status = 'OPEN'`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open gigs: %w", err)
	}
	return count, nil
}
