// Package relays stores relay configurations in the relays table.
package relays

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
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores a new relay. An existing name yields common.ErrDuplicateRelay.
func (r *PostgresRepository) Insert(ctx context.Context, relay *models.Relay) error {
	endpoints, err := json.Marshal(relay.WriteEndpoints)
	if err != nil {
		return fmt.Errorf("encode write endpoints: %w", err)
	}
	base, err := json.Marshal(relay.BaseFolder)
	if err != nil {
		return fmt.Errorf("encode base folder: %w", err)
	}

	query :=
		`INSERT INTO relays (relay_name, repository, password, write_endpoints, base_folder,
			max_relay_pulls, current_relay_pulls, custom_path, meta_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at
		 `

	err = r.db.QueryRowContext(ctx, query,
		relay.RelayName, relay.Repository, relay.Password, string(endpoints), string(base),
		relay.MaxRelayPulls, relay.CurrentRelayPulls, relay.CustomPath, relay.MetaData,
	).Scan(&relay.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return common.ErrDuplicateRelay
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get loads a relay by name, decoding its JSON columns.
func (r *PostgresRepository) Get(ctx context.Context, name string) (*models.Relay, error) {
	query :=
		`SELECT relay_name, repository, password, write_endpoints, base_folder,
			max_relay_pulls, current_relay_pulls, custom_path, meta_data, created_at
		 FROM relays
		 WHERE relay_name = $1
		 `

	relay := &models.Relay{}
	var endpoints, base []byte
	err := r.db.QueryRowContext(ctx, query, name).Scan(
		&relay.RelayName, &relay.Repository, &relay.Password, &endpoints, &base,
		&relay.MaxRelayPulls, &relay.CurrentRelayPulls, &relay.CustomPath, &relay.MetaData, &relay.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(endpoints, &relay.WriteEndpoints); err != nil {
		return nil, fmt.Errorf("decode write endpoints: %w", err)
	}
	if err := json.Unmarshal(base, &relay.BaseFolder); err != nil {
		return nil, fmt.Errorf("decode base folder: %w", err)
	}
	return relay, nil
}

// Update overwrites the columns set in upd. The relay name and pull counter
// are never touched here.
func (r *PostgresRepository) Update(ctx context.Context, name string, upd *Update) error {
	if upd.Empty() {
		return nil
	}

	var sets []string
	var args []any
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Repository != nil {
		add("repository", *upd.Repository)
	}
	if upd.Password != nil {
		add("password", *upd.Password)
	}
	if upd.WriteEndpoints != nil {
		b, err := json.Marshal(upd.WriteEndpoints)
		if err != nil {
			return fmt.Errorf("encode write endpoints: %w", err)
		}
		add("write_endpoints", string(b))
	}
	if upd.BaseFolder != nil {
		b, err := json.Marshal(upd.BaseFolder)
		if err != nil {
			return fmt.Errorf("encode base folder: %w", err)
		}
		add("base_folder", string(b))
	}
	if upd.MaxRelayPulls != nil {
		add("max_relay_pulls", *upd.MaxRelayPulls)
	}
	if upd.CustomPath != nil {
		add("custom_path", *upd.CustomPath)
	}
	if upd.MetaData != nil {
		add("meta_data", *upd.MetaData)
	}

	args = append(args, name)
	query := fmt.Sprintf("UPDATE relays SET %s WHERE relay_name = $%d", strings.Join(sets, ", "), len(args))

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(result)
}

// Delete removes a relay row.
func (r *PostgresRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM relays WHERE relay_name = $1`, name)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(result)
}

// IncrementPulls consumes one pull and returns the new count. When the relay
// is at capacity (or absent) no row matches and common.ErrQuotaExhausted is
// returned; callers that need to tell the two apart look the relay up first.
func (r *PostgresRepository) IncrementPulls(ctx context.Context, name string) (int64, error) {
	query :=
		`UPDATE relays SET current_relay_pulls = current_relay_pulls + 1
		 WHERE relay_name = $1 AND current_relay_pulls < max_relay_pulls
		 RETURNING current_relay_pulls
		 `

	var pulls int64
	err := r.db.QueryRowContext(ctx, query, name).Scan(&pulls)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrQuotaExhausted
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return pulls, nil
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
