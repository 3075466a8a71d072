package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hanizaheer02/impact-tracker/internal/adapter/notify"
	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/infra"
	"github.com/hanizaheer02/impact-tracker/internal/sqlinline"
)

// LedgerRepositoryPG implements domain.LedgerStore on PostgreSQL. Transactions run
// at SERIALIZABLE isolation, and every commit announces its donations with
// pg_notify on the configured channel.
type LedgerRepositoryPG struct {
	sql     infra.TxRunner
	channel string
}

// NewLedgerRepository creates a ledger repository. An empty channel disables
// change notifications.
func NewLedgerRepository(sql infra.TxRunner, channel string) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{sql: sql, channel: channel}
}

func (r *LedgerRepositoryPG) RunInTx(ctx context.Context, fn func(ctx context.Context, tx domain.LedgerTx) error) error {
	err := r.sql.InTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(exec infra.SQLExecutor) error {
		tx := &pgLedgerTx{sql: exec}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return r.announce(ctx, exec, tx.inserted)
	})
	if err != nil && infra.IsRetryable(err) {
		return fmt.Errorf("postgres: %v: %w", err, domain.ErrWriteConflict)
	}
	return err
}

func (r *LedgerRepositoryPG) announce(ctx context.Context, exec infra.SQLExecutor, changes []domain.Change) error {
	if r.channel == "" {
		return nil
	}
	for _, c := range changes {
		payload, err := notify.Encode(c)
		if err != nil {
			return err
		}
		if _, err := exec.Exec(ctx, sqlinline.QNotifyLedgerChange, r.channel, payload); err != nil {
			return fmt.Errorf("notify ledger change: %w", err)
		}
	}
	return nil
}

func (r *LedgerRepositoryPG) GetCounters(ctx context.Context) (*domain.AggregateCounters, error) {
	return selectCounters(ctx, r.sql)
}

// ListRecent returns the newest donations in commit order.
func (r *LedgerRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.Donation, error) {
	if limit <= 0 {
		return []domain.Donation{}, nil
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListRecentLedger, limit)
	if err != nil {
		return nil, err
	}
	return scanDonations(rows)
}

func (r *LedgerRepositoryPG) ListByDonor(ctx context.Context, donorID string) ([]domain.Donation, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListLedgerByDonor, donorID)
	if err != nil {
		return nil, err
	}
	return scanDonations(rows)
}

// Provision creates the counters record if it does not exist yet. It reports
// whether a record was created.
func (r *LedgerRepositoryPG) Provision(ctx context.Context, c domain.AggregateCounters) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QProvisionCounters,
		domain.GlobalCountersID,
		c.TotalDonations.String(),
		c.UniqueDonors,
		c.FundsTransferred.String(),
	)
	if err != nil {
		return false, fmt.Errorf("provision counters: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Migrate applies the ledger schema.
func (r *LedgerRepositoryPG) Migrate(ctx context.Context) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QLedgerSchema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

type pgLedgerTx struct {
	sql         infra.SQLExecutor
	readVersion int64
	read        bool
	inserted    []domain.Change
}

func (t *pgLedgerTx) GetCounters(ctx context.Context) (*domain.AggregateCounters, error) {
	c, err := selectCounters(ctx, t.sql)
	if err != nil {
		return nil, err
	}
	t.read = true
	t.readVersion = c.Version
	return c, nil
}

func (t *pgLedgerTx) InsertDonation(ctx context.Context, d *domain.Donation) error {
	if d == nil {
		return errors.New("donation is required")
	}
	donorID := ""
	if d.DonorID != nil {
		donorID = *d.DonorID
	}
	row := t.sql.QueryRow(ctx, sqlinline.QInsertLedgerDonation,
		d.Amount.String(),
		donorID,
		d.DonorName,
		d.Region,
		d.ImpactType,
		d.Anonymous,
		d.Status,
		d.OriginCountry,
	)
	var createdAt time.Time
	if err := row.Scan(&d.ID, &d.Seq, &createdAt); err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	d.CreatedAt = createdAt.UTC()
	t.inserted = append(t.inserted, domain.Change{Seq: d.Seq, DonationID: d.ID})
	return nil
}

// PutCounters writes c only if the record still has the version read earlier in
// this transaction.
func (t *pgLedgerTx) PutCounters(ctx context.Context, c *domain.AggregateCounters) error {
	if c == nil {
		return errors.New("counters are required")
	}
	if !t.read {
		return fmt.Errorf("counters written without being read: %w", domain.ErrWriteConflict)
	}
	tag, err := t.sql.Exec(ctx, sqlinline.QUpdateCounters,
		domain.GlobalCountersID,
		c.TotalDonations.String(),
		c.UniqueDonors,
		c.Version,
		t.readVersion,
	)
	if err != nil {
		return fmt.Errorf("update counters: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("counters version %d no longer current: %w", t.readVersion, domain.ErrWriteConflict)
	}
	return nil
}

func selectCounters(ctx context.Context, exec infra.SQLExecutor) (*domain.AggregateCounters, error) {
	var total, transferred string
	var c domain.AggregateCounters
	row := exec.QueryRow(ctx, sqlinline.QSelectCounters, domain.GlobalCountersID)
	if err := row.Scan(&total, &c.UniqueDonors, &transferred, &c.Version, &c.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrAggregateMissing
		}
		return nil, fmt.Errorf("select counters: %w", err)
	}
	var err error
	if c.TotalDonations, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total donations: %w", err)
	}
	if c.FundsTransferred, err = decimal.NewFromString(transferred); err != nil {
		return nil, fmt.Errorf("parse funds transferred: %w", err)
	}
	return &c, nil
}

func scanDonations(rows pgx.Rows) ([]domain.Donation, error) {
	defer rows.Close()
	items := []domain.Donation{}
	for rows.Next() {
		var d domain.Donation
		var amount string
		var donorID *string
		if err := rows.Scan(&d.ID, &d.Seq, &amount, &donorID, &d.DonorName, &d.Region,
			&d.ImpactType, &d.Anonymous, &d.Status, &d.OriginCountry, &d.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount of donation %s: %w", d.ID, err)
		}
		d.Amount = parsed
		d.DonorID = donorID
		d.CreatedAt = d.CreatedAt.UTC()
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

var _ domain.LedgerStore = (*LedgerRepositoryPG)(nil)
