// Package impl implements the Store interface on Postgres through pgx.
package impl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // postgres migration driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/fargraph/go-fargraph/pkg/farcaster"
	"github.com/fargraph/go-fargraph/pkg/store"
	"github.com/fargraph/go-fargraph/pkg/store/impl/migrations"
)

// Environment selects the connection pool profile.
type Environment string

// Known environments.
const (
	EnvironmentProd Environment = "PROD"
	EnvironmentDev  Environment = "DEV"
	EnvironmentTest Environment = "TEST"
)

const (
	defaultBatchSize = 1000

	writeRetries   = 3
	writeBaseDelay = time.Second
)

// PgStore is a Store backed by a pgx connection pool.
type PgStore struct {
	log  zerolog.Logger
	pool *pgxpool.Pool
}

var _ store.Store = (*PgStore)(nil)

// New connects to Postgres, runs pending migrations and returns the store.
func New(ctx context.Context, connString string, env Environment) (*PgStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres connection string: %s", err)
	}
	applyPoolProfile(cfg, env)
	cfg.ConnConfig.ConnectTimeout = time.Second * 10
	cfg.ConnConfig.DialFunc = (&net.Dialer{
		Timeout:   time.Second * 10,
		KeepAlive: time.Second * 600,
	}).DialContext

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %s", err)
	}

	if err := executeMigration(connString); err != nil {
		pool.Close()
		return nil, fmt.Errorf("executing migrations: %s", err)
	}

	s := &PgStore{
		log:  logger.With().Str("component", "store").Logger(),
		pool: pool,
	}
	if err := s.initMetrics(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initializing metrics instruments: %s", err)
	}
	return s, nil
}

func applyPoolProfile(cfg *pgxpool.Config, env Environment) {
	switch env {
	case EnvironmentProd:
		cfg.MaxConns = 20
		cfg.MinConns = 5
	case EnvironmentTest:
		cfg.MaxConns = 5
		cfg.MinConns = 1
	default:
		cfg.MaxConns = 10
		cfg.MinConns = 2
	}
	cfg.MaxConnIdleTime = time.Second * 20
	cfg.MaxConnLifetime = time.Minute * 30
}

func executeMigration(connString string) error {
	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("creating migration source: %s", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", d, connString)
	if err != nil {
		return fmt.Errorf("creating migration: %s", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migration up: %s", err)
	}
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return fmt.Errorf("closing migration source: %s", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration db: %s", dbErr)
	}
	return nil
}

// Close closes the connection pool.
func (s *PgStore) Close() {
	s.pool.Close()
}

// InsertTarget inserts a target if absent, reporting whether a row was
// created.
func (s *PgStore) InsertTarget(ctx context.Context, fid uint64, isRoot bool) (bool, error) {
	var inserted bool
	err := s.safeWrite(ctx, func() error {
		ct, err := s.pool.Exec(ctx,
			`INSERT INTO targets (fid, is_root) VALUES ($1, $2) ON CONFLICT (fid) DO NOTHING`,
			int64(fid), isRoot)
		if err != nil {
			return err
		}
		inserted = ct.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("inserting target %d: %s", fid, err)
	}
	return inserted, nil
}

// GetTarget returns the target row, or nil if the fid isn't tracked.
func (s *PgStore) GetTarget(ctx context.Context, fid uint64) (*store.Target, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT fid, is_root, added_at, last_synced_at FROM targets WHERE fid = $1`, int64(fid))
	t, err := scanTarget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting target %d: %s", fid, err)
	}
	return t, nil
}

// ListTargets returns all targets.
func (s *PgStore) ListTargets(ctx context.Context) ([]store.Target, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fid, is_root, added_at, last_synced_at FROM targets ORDER BY fid`)
	if err != nil {
		return nil, fmt.Errorf("listing targets: %s", err)
	}
	defer rows.Close()

	var targets []store.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning target: %s", err)
		}
		targets = append(targets, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating targets: %s", err)
	}
	return targets, nil
}

// RemoveTarget deletes a target row.
func (s *PgStore) RemoveTarget(ctx context.Context, fid uint64) error {
	return s.exec(ctx, "removing target",
		`DELETE FROM targets WHERE fid = $1`, int64(fid))
}

// SetTargetSynced marks a target's backfill as completed.
func (s *PgStore) SetTargetSynced(ctx context.Context, fid uint64) error {
	return s.exec(ctx, "marking target synced",
		`UPDATE targets SET last_synced_at = now() WHERE fid = $1`, int64(fid))
}

// InsertTargetClient inserts a client fid if absent, reporting whether a
// row was created.
func (s *PgStore) InsertTargetClient(ctx context.Context, fid uint64) (bool, error) {
	var inserted bool
	err := s.safeWrite(ctx, func() error {
		ct, err := s.pool.Exec(ctx,
			`INSERT INTO target_clients (client_fid) VALUES ($1) ON CONFLICT (client_fid) DO NOTHING`,
			int64(fid))
		if err != nil {
			return err
		}
		inserted = ct.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("inserting target client %d: %s", fid, err)
	}
	return inserted, nil
}

// ListTargetClients returns all client fids.
func (s *PgStore) ListTargetClients(ctx context.Context) ([]store.TargetClient, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT client_fid, added_at FROM target_clients ORDER BY client_fid`)
	if err != nil {
		return nil, fmt.Errorf("listing target clients: %s", err)
	}
	defer rows.Close()

	var clients []store.TargetClient
	for rows.Next() {
		var fid int64
		var addedAt time.Time
		if err := rows.Scan(&fid, &addedAt); err != nil {
			return nil, fmt.Errorf("scanning target client: %s", err)
		}
		clients = append(clients, store.TargetClient{Fid: uint64(fid), AddedAt: addedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating target clients: %s", err)
	}
	return clients, nil
}

// RemoveTargetClient deletes a client fid.
func (s *PgStore) RemoveTargetClient(ctx context.Context, fid uint64) error {
	return s.exec(ctx, "removing target client",
		`DELETE FROM target_clients WHERE client_fid = $1`, int64(fid))
}

// InsertCasts upserts casts idempotently.
func (s *PgStore) InsertCasts(ctx context.Context, casts []store.Cast) error {
	rows := make([][]interface{}, len(casts))
	for i, c := range casts {
		rows[i] = []interface{}{
			string(c.Hash), int64(c.Fid), c.Text,
			nullHex(c.ParentHash), nullFid(c.ParentFid), nullStr(c.ParentURL),
			c.Timestamp, nullJSON(c.Embeds), nullJSON(c.Mentions), nullJSON(c.MentionsPositions),
		}
	}
	return s.insertBatched(ctx, "casts",
		[]string{"hash", "fid", "text", "parent_hash", "parent_fid", "parent_url", "timestamp", "embeds", "mentions", "mentions_positions"},
		"(hash)", rows)
}

// DeleteCast removes a cast by hash.
func (s *PgStore) DeleteCast(ctx context.Context, hash farcaster.Hex) error {
	return s.exec(ctx, "deleting cast",
		`DELETE FROM casts WHERE hash = $1`, string(hash))
}

// InsertReactions upserts reactions idempotently.
func (s *PgStore) InsertReactions(ctx context.Context, reactions []store.Reaction) error {
	rows := make([][]interface{}, len(reactions))
	for i, r := range reactions {
		rows[i] = []interface{}{
			string(r.Hash), int64(r.Fid), string(r.Type),
			nullHex(r.TargetHash), nullFid(r.TargetFid), nullStr(r.TargetURL), r.Timestamp,
		}
	}
	return s.insertBatched(ctx, "reactions",
		[]string{"hash", "fid", "type", "target_hash", "target_fid", "target_url", "timestamp"},
		"(hash)", rows)
}

// DeleteReaction removes the reaction matching (fid, target_hash, type).
func (s *PgStore) DeleteReaction(
	ctx context.Context, fid uint64, targetHash farcaster.Hex, typ farcaster.ReactionType,
) error {
	return s.exec(ctx, "deleting reaction",
		`DELETE FROM reactions WHERE fid = $1 AND target_hash = $2 AND type = $3`,
		int64(fid), string(targetHash), string(typ))
}

// InsertLinks upserts links idempotently.
func (s *PgStore) InsertLinks(ctx context.Context, links []store.Link) error {
	rows := make([][]interface{}, len(links))
	for i, l := range links {
		rows[i] = []interface{}{
			string(l.Hash), int64(l.Fid), int64(l.TargetFid), string(l.Type), l.Timestamp,
		}
	}
	return s.insertBatched(ctx, "links",
		[]string{"hash", "fid", "target_fid", "type", "timestamp"},
		"(hash)", rows)
}

// DeleteLink removes the link matching (fid, target_fid, type).
func (s *PgStore) DeleteLink(ctx context.Context, fid, targetFid uint64, typ farcaster.LinkType) error {
	return s.exec(ctx, "deleting link",
		`DELETE FROM links WHERE fid = $1 AND target_fid = $2 AND type = $3`,
		int64(fid), int64(targetFid), string(typ))
}

// InsertVerifications upserts verifications idempotently.
func (s *PgStore) InsertVerifications(ctx context.Context, verifications []store.Verification) error {
	rows := make([][]interface{}, len(verifications))
	for i, v := range verifications {
		rows[i] = []interface{}{
			string(v.Hash), int64(v.Fid), string(v.Address), string(v.Protocol),
			nullHex(v.BlockHash), v.Timestamp,
		}
	}
	return s.insertBatched(ctx, "verifications",
		[]string{"hash", "fid", "address", "protocol", "block_hash", "timestamp"},
		"(hash)", rows)
}

// DeleteVerification removes the verification matching (fid, address).
func (s *PgStore) DeleteVerification(ctx context.Context, fid uint64, address farcaster.Hex) error {
	return s.exec(ctx, "deleting verification",
		`DELETE FROM verifications WHERE fid = $1 AND address = $2`,
		int64(fid), string(address))
}

// InsertUserData upserts user data rows idempotently.
func (s *PgStore) InsertUserData(ctx context.Context, userData []store.UserData) error {
	rows := make([][]interface{}, len(userData))
	for i, u := range userData {
		rows[i] = []interface{}{
			string(u.Hash), int64(u.Fid), string(u.Type), u.Value, u.Timestamp,
		}
	}
	return s.insertBatched(ctx, "user_data",
		[]string{"hash", "fid", "type", "value", "timestamp"},
		"(hash)", rows)
}

// InsertUsernameProofs upserts username proofs idempotently.
func (s *PgStore) InsertUsernameProofs(ctx context.Context, proofs []store.UsernameProof) error {
	rows := make([][]interface{}, len(proofs))
	for i, p := range proofs {
		rows[i] = []interface{}{
			string(p.Hash), int64(p.Fid), p.Name, string(p.Owner), string(p.Signature), p.Timestamp,
		}
	}
	return s.insertBatched(ctx, "username_proofs",
		[]string{"hash", "fid", "name", "owner", "signature", "timestamp"},
		"(hash)", rows)
}

// InsertOnChainEvents upserts on-chain events idempotently, keyed by
// (transaction_hash, log_index).
func (s *PgStore) InsertOnChainEvents(ctx context.Context, events []store.OnChainEvent) error {
	rows := make([][]interface{}, len(events))
	for i, e := range events {
		rows[i] = []interface{}{
			string(e.Type), int64(e.ChainID), int64(e.BlockNumber), string(e.BlockHash),
			e.BlockTimestamp, string(e.TransactionHash), int64(e.LogIndex), int64(e.Fid),
			nullJSON(e.SignerEventBody), nullJSON(e.IDRegisterEventBody),
			nullJSON(e.KeyRegistryEventBody), nullJSON(e.StorageRentEventBody),
		}
	}
	return s.insertBatched(ctx, "on_chain_events",
		[]string{
			"type", "chain_id", "block_number", "block_hash", "block_timestamp",
			"transaction_hash", "log_index", "fid", "signer_event_body",
			"id_registry_event_body", "key_registry_event_body", "storage_rent_event_body",
		},
		"(transaction_hash, log_index)", rows)
}

// GetLastEventID returns the cursor for the named stream, or 0 if absent.
func (s *PgStore) GetLastEventID(ctx context.Context, name string) (uint64, error) {
	var id sql.NullInt64
	err := s.pool.QueryRow(ctx,
		`SELECT last_event_id FROM sync_state WHERE name = $1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("getting last event id for %s: %s", name, err)
	}
	if !id.Valid {
		return 0, nil
	}
	return uint64(id.Int64), nil
}

// SetLastEventID advances the cursor for the named stream.
func (s *PgStore) SetLastEventID(ctx context.Context, name string, id uint64) error {
	return s.exec(ctx, "setting last event id",
		`INSERT INTO sync_state (name, last_event_id, last_synced_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (name) DO UPDATE SET last_event_id = EXCLUDED.last_event_id, last_synced_at = now()`,
		name, int64(id))
}

// RefreshUserProfiles refreshes the user_profiles materialized view.
func (s *PgStore) RefreshUserProfiles(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY user_profiles`); err != nil {
		return fmt.Errorf("refreshing user profiles: %s", err)
	}
	return nil
}

// insertBatched splits rows in fixed-size batches and inserts each batch in
// its own transaction with ON CONFLICT DO NOTHING.
func (s *PgStore) insertBatched(
	ctx context.Context, table string, columns []string, conflictTarget string, rows [][]interface{},
) error {
	for start := 0; start < len(rows); start += defaultBatchSize {
		end := start + defaultBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		query, args := buildInsert(table, columns, conflictTarget, batch)
		err := s.safeWrite(ctx, func() error {
			return s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
				_, err := tx.Exec(ctx, query, args...)
				return err
			})
		})
		if err != nil {
			return fmt.Errorf("inserting %d rows into %s: %s", len(batch), table, err)
		}
	}
	return nil
}

// buildInsert renders a multi-row INSERT ... ON CONFLICT DO NOTHING.
func buildInsert(table string, columns []string, conflictTarget string, rows [][]interface{}) (string, []interface{}) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(columns, ", "))
	args := make([]interface{}, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range columns {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", i*len(columns)+j+1)
		}
		sb.WriteString(")")
		args = append(args, row...)
	}
	fmt.Fprintf(&sb, " ON CONFLICT %s DO NOTHING", conflictTarget)
	return sb.String(), args
}

func (s *PgStore) exec(ctx context.Context, what, query string, args ...interface{}) error {
	err := s.safeWrite(ctx, func() error {
		_, err := s.pool.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %s", what, err)
	}
	return nil
}

// safeWrite retries an operation with exponential backoff on transient
// database errors. Constraint violations and other logic errors are
// surfaced immediately.
func (s *PgStore) safeWrite(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = writeBaseDelay
	return backoff.Retry(func() error {
		if err := op(); err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			s.log.Warn().Err(err).Msg("transient database error, retrying")
			return err
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(writeRetries-1)), ctx))
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Serialization failures, deadlocks and connection exceptions are
		// transient; everything else (constraint violations included) is a bug.
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return true
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTarget(row rowScanner) (*store.Target, error) {
	var fid int64
	var isRoot bool
	var addedAt time.Time
	var lastSynced sql.NullTime
	if err := row.Scan(&fid, &isRoot, &addedAt, &lastSynced); err != nil {
		return nil, err
	}
	t := &store.Target{Fid: uint64(fid), IsRoot: isRoot, AddedAt: addedAt}
	if lastSynced.Valid {
		ts := lastSynced.Time
		t.LastSyncedAt = &ts
	}
	return t, nil
}

func nullHex(h *farcaster.Hex) interface{} {
	if h == nil {
		return nil
	}
	return string(*h)
}

func nullStr(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullFid(f *uint64) interface{} {
	if f == nil {
		return nil
	}
	return int64(*f)
}

func nullJSON(j json.RawMessage) interface{} {
	if len(j) == 0 {
		return nil
	}
	return []byte(j)
}
