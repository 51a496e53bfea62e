// Package subjectkeys stores issued subject keys. Every relay owns a separate
// table named after it, created on relay provisioning and dropped on demand.
package subjectkeys

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/dmitrijs2005/exius/internal/dbx"
	"github.com/dmitrijs2005/exius/internal/server/models"
	"github.com/jackc/pgx/v5"
)

// TablePrefix is prepended to the relay name to form the table name.
const TablePrefix = "subject_keys_"

// Postgres truncates identifiers longer than 63 bytes, so two long relay
// names could share one table. Relay names are capped to keep table names
// distinct.
const (
	maxIdentifierLength = 63
	MaxRelayNameLength  = maxIdentifierLength - len(TablePrefix)
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db    dbx.DBTX
	table string
}

// NewPostgresRepository constructs a repository for relayName's credential
// table bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX, relayName string) *PostgresRepository {
	return &PostgresRepository{db: db, table: TableName(relayName)}
}

// TableName returns the quoted identifier of relayName's credential table.
func TableName(relayName string) string {
	return pgx.Identifier{TablePrefix + relayName}.Sanitize()
}

func (r *PostgresRepository) CreateTable(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + r.table + ` (
		subject_key  TEXT PRIMARY KEY,
		upload_state JSONB NOT NULL,
		relay_number BIGINT NOT NULL,
		meta_data    TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DropTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+r.table); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	return nil
}

// TableExists reports whether the credential table has been provisioned.
func (r *PostgresRepository) TableExists(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, r.table).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Exists reports whether key is already issued in this relay.
func (r *PostgresRepository) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM ` + r.table + ` WHERE subject_key = $1)`
	if err := r.db.QueryRowContext(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, key *models.SubjectKey) error {
	state, err := json.Marshal(key.UploadState)
	if err != nil {
		return fmt.Errorf("encode upload state: %w", err)
	}

	query := `INSERT INTO ` + r.table + ` (subject_key, upload_state, relay_number, meta_data)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	err = r.db.QueryRowContext(ctx, query, key.SubjectKey, string(state), key.RelayNumber, key.MetaData).Scan(&key.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, key string) (*models.SubjectKey, error) {
	query := `SELECT subject_key, upload_state, relay_number, meta_data, created_at FROM ` + r.table + `
		WHERE subject_key = $1`

	item, err := scanKey(r.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	return item, nil
}

// List returns every credential of the relay ordered by issuance.
func (r *PostgresRepository) List(ctx context.Context) ([]*models.SubjectKey, error) {
	query := `SELECT subject_key, upload_state, relay_number, meta_data, created_at FROM ` + r.table + `
		ORDER BY relay_number, subject_key`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select subject keys: %w", err)
	}
	defer rows.Close()

	var result []*models.SubjectKey
	for rows.Next() {
		item, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Update overwrites the upload state and/or metadata of key. The upload
// state is written back as a whole.
func (r *PostgresRepository) Update(ctx context.Context, key string, upd *Update) error {
	if upd == nil || (upd.UploadState == nil && upd.MetaData == nil) {
		return nil
	}

	var sets []string
	var args []any
	if upd.UploadState != nil {
		b, err := json.Marshal(upd.UploadState)
		if err != nil {
			return fmt.Errorf("encode upload state: %w", err)
		}
		args = append(args, string(b))
		sets = append(sets, fmt.Sprintf("upload_state = $%d", len(args)))
	}
	if upd.MetaData != nil {
		args = append(args, *upd.MetaData)
		sets = append(sets, fmt.Sprintf("meta_data = $%d", len(args)))
	}
	args = append(args, key)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE subject_key = $%d", r.table, strings.Join(sets, ", "), len(args))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(result)
}

func (r *PostgresRepository) Delete(ctx context.Context, key string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE subject_key = $1`, key)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(result)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (*models.SubjectKey, error) {
	item := &models.SubjectKey{}
	var state []byte
	if err := row.Scan(&item.SubjectKey, &state, &item.RelayNumber, &item.MetaData, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(state, &item.UploadState); err != nil {
		return nil, fmt.Errorf("decode upload state: %w", err)
	}
	return item, nil
}

func expectOneRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}
