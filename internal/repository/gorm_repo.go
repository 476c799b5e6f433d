package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"auction-engine/internal/auctionerrors"
	model "auction-engine/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Postgres SQLSTATE codes the engine reacts to
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgConnectionException  = "08"
)

// GormRepo is the Postgres-backed AuctionDB. Per-auction serialization is a
// SELECT ... FOR UPDATE on the auction row taken at the start of the transaction.
type GormRepo struct {
	db *gorm.DB
}

// OpenPostgres connects to Postgres and configures the pool
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewGormRepo creates a repository on top of an open gorm connection
func NewGormRepo(db *gorm.DB) *GormRepo {
	return &GormRepo{db: db}
}

// Migrate creates or updates the engine's tables
func (r *GormRepo) Migrate() error {
	return r.db.AutoMigrate(&model.User{}, &model.Auction{}, &model.Stake{}, &model.LedgerEntry{})
}

// WithAuctionLock runs fn in a transaction holding the auction row lock
func (r *GormRepo) WithAuctionLock(ctx context.Context, auctionID string, fn func(tx Tx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked model.Auction
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", auctionID).
			Take(&locked).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("lock auction %s: %w", auctionID, auctionerrors.ErrAuctionNotFound)
		}
		if err != nil {
			return err
		}
		return fn(&gormTx{db: tx})
	})
	return translateError(err)
}

// WithTx runs fn in a plain transaction
func (r *GormRepo) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
	return translateError(err)
}

// GetAuction returns an auction by id
func (r *GormRepo) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	return (&gormTx{db: r.db.WithContext(ctx)}).GetAuction(id)
}

// ListAuctions returns auctions newest first, optionally filtered by status
func (r *GormRepo) ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	q := r.db.WithContext(ctx).Model(&model.Auction{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []model.Auction
	if err := q.Order("created_at DESC, id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list auctions: %w", translateError(err))
	}
	return out, nil
}

// ListDueAuctions returns auctions whose next scheduled transition is due at now
func (r *GormRepo) ListDueAuctions(ctx context.Context, status model.AuctionStatus, now time.Time) ([]model.Auction, error) {
	q := r.db.WithContext(ctx).Where("status = ?", status)
	switch status {
	case model.StatusUpcoming:
		q = q.Where("start_time <= ?", now)
	case model.StatusLive:
		q = q.Where("end_time <= ?", now)
	default:
		return nil, nil
	}
	var out []model.Auction
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list due %s auctions: %w", status, translateError(err))
	}
	return out, nil
}

// ListStakes returns the stakes of an auction, highest amount first
func (r *GormRepo) ListStakes(ctx context.Context, auctionID string) ([]model.Stake, error) {
	tx := &gormTx{db: r.db.WithContext(ctx)}
	if _, err := tx.GetAuction(auctionID); err != nil {
		return nil, err
	}
	return tx.ListStakes(auctionID)
}

// GetUser returns a user's wallet
func (r *GormRepo) GetUser(ctx context.Context, id string) (model.User, error) {
	return (&gormTx{db: r.db.WithContext(ctx)}).GetUser(id)
}

// ListLedger returns a user's ledger entries in commit order
func (r *GormRepo) ListLedger(ctx context.Context, userID string) ([]model.LedgerEntry, error) {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	var out []model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("seq ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list ledger for user %s: %w", userID, translateError(err))
	}
	return out, nil
}

// translateError maps driver failures onto the engine's transient error kinds.
// Errors that already carry a domain sentinel pass through untouched.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgSerializationFailure, pgErr.Code == pgDeadlockDetected:
			return fmt.Errorf("%w: %v", auctionerrors.ErrConcurrencyConflict, err)
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgConnectionException:
			return fmt.Errorf("%w: %v", auctionerrors.ErrPersistenceUnavailable, err)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", auctionerrors.ErrPersistenceUnavailable, err)
	}
	return err
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) GetAuction(id string) (model.Auction, error) {
	var a model.Auction
	err := t.db.Where("id = ?", id).Take(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", id, auctionerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", id, translateError(err))
	}
	return a, nil
}

func (t *gormTx) InsertAuction(a model.Auction) error {
	if err := t.db.Create(&a).Error; err != nil {
		return fmt.Errorf("insert auction %s: %w", a.ID, translateError(err))
	}
	return nil
}

func (t *gormTx) UpdateAuction(a model.Auction) error {
	res := t.db.Model(&model.Auction{}).Where("id = ?", a.ID).Select("*").Omit("id", "created_at").Updates(&a)
	if res.Error != nil {
		return fmt.Errorf("update auction %s: %w", a.ID, translateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update auction %s: %w", a.ID, auctionerrors.ErrAuctionNotFound)
	}
	return nil
}

func (t *gormTx) DeleteAuction(id string) error {
	if err := t.db.Where("auction_id = ?", id).Delete(&model.Stake{}).Error; err != nil {
		return fmt.Errorf("delete stakes of auction %s: %w", id, translateError(err))
	}
	res := t.db.Where("id = ?", id).Delete(&model.Auction{})
	if res.Error != nil {
		return fmt.Errorf("delete auction %s: %w", id, translateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete auction %s: %w", id, auctionerrors.ErrAuctionNotFound)
	}
	return nil
}

func (t *gormTx) ClaimStatus(id string, from, to model.AuctionStatus) (bool, error) {
	res := t.db.Model(&model.Auction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("claim auction %s %s->%s: %w", id, from, to, translateError(res.Error))
	}
	return res.RowsAffected == 1, nil
}

func (t *gormTx) IncrementCounters(id string, participants, bids int64) error {
	res := t.db.Model(&model.Auction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_participants": gorm.Expr("total_participants + ?", participants),
			"total_bids":         gorm.Expr("total_bids + ?", bids),
			"updated_at":         time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("increment counters for auction %s: %w", id, translateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("increment counters for auction %s: %w", id, auctionerrors.ErrAuctionNotFound)
	}
	return nil
}

func (t *gormTx) GetStake(auctionID, userID string) (model.Stake, error) {
	var s model.Stake
	err := t.db.Where("auction_id = ? AND user_id = ?", auctionID, userID).Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Stake{}, fmt.Errorf("get stake %s/%s: %w", auctionID, userID, auctionerrors.ErrStakeNotFound)
	}
	if err != nil {
		return model.Stake{}, fmt.Errorf("get stake %s/%s: %w", auctionID, userID, translateError(err))
	}
	return s, nil
}

func (t *gormTx) ListStakes(auctionID string) ([]model.Stake, error) {
	var out []model.Stake
	err := t.db.Where("auction_id = ?", auctionID).Order("amount DESC, user_id ASC").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list stakes for auction %s: %w", auctionID, translateError(err))
	}
	return out, nil
}

func (t *gormTx) InsertStake(s model.Stake) error {
	err := t.db.Create(&s).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("insert stake %s/%s: %w", s.AuctionID, s.UserID, auctionerrors.ErrAlreadyJoined)
	}
	if err != nil {
		return fmt.Errorf("insert stake %s/%s: %w", s.AuctionID, s.UserID, translateError(err))
	}
	return nil
}

func (t *gormTx) UpdateStake(s model.Stake) error {
	res := t.db.Model(&model.Stake{}).
		Where("auction_id = ? AND user_id = ?", s.AuctionID, s.UserID).
		Updates(map[string]any{"amount": s.Amount, "is_winning": s.IsWinning, "bid_time": s.BidTime})
	if res.Error != nil {
		return fmt.Errorf("update stake %s/%s: %w", s.AuctionID, s.UserID, translateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update stake %s/%s: %w", s.AuctionID, s.UserID, auctionerrors.ErrStakeNotFound)
	}
	return nil
}

func (t *gormTx) GetUser(id string) (model.User, error) {
	var u model.User
	err := t.db.Where("id = ?", id).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.User{}, fmt.Errorf("get user %s: %w", id, auctionerrors.ErrUserNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", id, translateError(err))
	}
	return u, nil
}

func (t *gormTx) InsertUser(u model.User) error {
	err := t.db.Create(&u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("insert user %s: %w", u.ID, auctionerrors.ErrUserExists)
	}
	if err != nil {
		return fmt.Errorf("insert user %s: %w", u.ID, translateError(err))
	}
	return nil
}

// AdjustBalance is a single conditional UPDATE so the non-negative check and
// the write cannot interleave with another writer of the same wallet.
func (t *gormTx) AdjustBalance(userID string, delta int64) (int64, error) {
	res := t.db.Model(&model.User{}).
		Where("id = ? AND balance + ? >= 0", userID, delta).
		Updates(map[string]any{"balance": gorm.Expr("balance + ?", delta), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return 0, fmt.Errorf("adjust balance for user %s: %w", userID, translateError(res.Error))
	}

	u, err := t.GetUser(userID)
	if err != nil {
		return 0, err
	}
	if res.RowsAffected == 0 {
		return u.Balance, fmt.Errorf("adjust balance for user %s: %w", userID, auctionerrors.ErrInsufficientFunds)
	}
	return u.Balance, nil
}

func (t *gormTx) AppendLedger(e model.LedgerEntry) error {
	if err := t.db.Create(&e).Error; err != nil {
		return fmt.Errorf("append ledger entry for user %s: %w", e.UserID, translateError(err))
	}
	return nil
}
