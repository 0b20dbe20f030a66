package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/honeynil/CampusGigService/internal/infrastructure/observability"
	"github.com/honeynil/CampusGigService/internal/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("failed to begin transaction", "method", "RunInTx", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err = fn(ctx, &txRepositories{q: dbTx}); err != nil {
		if rbErr := dbTx.Rollback(); rbErr != nil {
			slog.Error("rollback failed", "method", "RunInTx", "error", rbErr)
			return fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
		}
		return err
	}

	if err = dbTx.Commit(); err != nil {
		slog.Error("failed to commit transaction", "method", "RunInTx", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txRepositories struct {
	q Queryer
}

func (t *txRepositories) Users() repository.UserRepository { return NewUserRepository(t.q) }
func (t *txRepositories) Gigs() repository.GigRepository   { return NewGigRepository(t.q) }
func (t *txRepositories) Transactions() repository.TransactionRepository {
	return NewTransactionRepository(t.q)
}
func (t *txRepositories) WalletLoads() repository.WalletLoadRepository {
	return NewWalletLoadRepository(t.q)
}
func (t *txRepositories) Withdrawals() repository.WithdrawalRepository {
	return NewWithdrawalRepository(t.q)
}
func (t *txRepositories) Coupons() repository.CouponRepository { return NewCouponRepository(t.q) }
func (t *txRepositories) Platform() repository.PlatformConfigRepository {
	return NewPlatformConfigRepository(t.q)
}

// startCall opens a span for a repository method; finishCall records metrics
// and the span status for the same call.
func startCall(ctx context.Context, tracerName, method string) (context.Context, trace.Span, time.Time) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, method)
	return ctx, span, time.Now()
}

func finishCall(span trace.Span, method string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	observability.RepositoryCalls.WithLabelValues(method, status).Inc()
	observability.RepositoryDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	span.End()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt32(v *int32) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: *v, Valid: true}
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
