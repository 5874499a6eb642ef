package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zjrosen/linkctl/internal/infrastructure/filelock"
	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// recordColumns is the list of columns to select for record queries.
const recordColumns = `network_id, routing_id, handler_address, linker_address, fee_token_address,
	nft_fee_token_address, nft_fee_amount, cross_chain_gas_limit, entity_address, progress,
	created_at, updated_at`

// RecordRepository implements domain.Repository using SQLite.
// Run leases are lock files beside the database file.
type RecordRepository struct {
	filelock.Leases

	db  *sql.DB
	now func() time.Time
}

func newRecordRepository(db *sql.DB, path string) *RecordRepository {
	return &RecordRepository{Leases: filelock.Leases{Base: path}, db: db, now: time.Now}
}

// Ensure RecordRepository implements the repository contracts.
var (
	_ domain.Repository = (*RecordRepository)(nil)
	_ domain.Updater    = (*RecordRepository)(nil)
	_ domain.Leaser     = (*RecordRepository)(nil)
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanRecord(scanner interface{ Scan(...any) error }) (*RecordModel, error) {
	var m RecordModel
	err := scanner.Scan(
		&m.NetworkID, &m.RoutingID, &m.HandlerAddress, &m.LinkerAddress, &m.FeeTokenAddress,
		&m.NFTFeeTokenAddress, &m.NFTFeeAmount, &m.CrossChainGasLimit, &m.EntityAddress, &m.Progress,
		&m.CreatedAt, &m.UpdatedAt,
	)
	return &m, err
}

// Get retrieves the record for id.
// Returns NotFoundError if the network has no row.
func (r *RecordRepository) Get(ctx context.Context, id domain.NetworkID) (domain.Record, error) {
	return r.get(ctx, r.db, id)
}

func (r *RecordRepository) get(ctx context.Context, q querier, id domain.NetworkID) (domain.Record, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE network_id = ?`, int64(id))
	m, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Record{}, &domain.NotFoundError{Network: id}
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to find record: %w", err)
	}
	_, rec, err := m.toDomain()
	return rec, err
}

// Put inserts or replaces the record for id.
func (r *RecordRepository) Put(ctx context.Context, id domain.NetworkID, rec domain.Record) error {
	return r.put(ctx, r.db, id, rec)
}

func (r *RecordRepository) put(ctx context.Context, q querier, id domain.NetworkID, rec domain.Record) error {
	m, err := toRecordModel(id, rec)
	if err != nil {
		return err
	}
	now := r.now().Unix()
	_, err = q.ExecContext(ctx,
		`INSERT INTO records (
			network_id, routing_id, handler_address, linker_address, fee_token_address,
			nft_fee_token_address, nft_fee_amount, cross_chain_gas_limit, entity_address, progress,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(network_id) DO UPDATE SET
			routing_id = excluded.routing_id,
			handler_address = excluded.handler_address,
			linker_address = excluded.linker_address,
			fee_token_address = excluded.fee_token_address,
			nft_fee_token_address = excluded.nft_fee_token_address,
			nft_fee_amount = excluded.nft_fee_amount,
			cross_chain_gas_limit = excluded.cross_chain_gas_limit,
			entity_address = excluded.entity_address,
			progress = excluded.progress,
			updated_at = excluded.updated_at`,
		m.NetworkID, m.RoutingID, m.HandlerAddress, m.LinkerAddress, m.FeeTokenAddress,
		m.NFTFeeTokenAddress, m.NFTFeeAmount, m.CrossChainGasLimit, m.EntityAddress, m.Progress,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// Update reads, modifies and writes id's record in one transaction. The
// connection begins transactions IMMEDIATE, so the write lock is taken before
// the read and concurrent updaters in other processes wait on busy_timeout.
func (r *RecordRepository) Update(ctx context.Context, id domain.NetworkID, fn func(*domain.Record, bool) error) (domain.Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, err := r.get(ctx, tx, id)
	exists := err == nil
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Record{}, err
	}
	if err := fn(&rec, exists); err != nil {
		return domain.Record{}, err
	}
	if err := r.put(ctx, tx, id, rec); err != nil {
		return domain.Record{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Record{}, fmt.Errorf("failed to commit update: %w", err)
	}
	return rec, nil
}

// List returns every record.
func (r *RecordRepository) List(ctx context.Context) (map[domain.NetworkID]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY network_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[domain.NetworkID]domain.Record)
	for rows.Next() {
		m, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		id, rec, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return out, nil
}

// Close is a no-op; the connection belongs to DB.
func (r *RecordRepository) Close() error { return nil }
