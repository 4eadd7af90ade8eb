package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/game"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/storage/sqlite/migrations"
	"github.com/ImmemorConsultrixContrarie/The-Rat-and-the-Time/internal/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store persists game snapshots in the game_state table, one row per entity.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps saves ordered.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return s.sqlDB.PingContext(ctx)
}

// Load reads every row. The snapshot time is the newest last_update.
func (s *Store) Load(ctx context.Context) (game.State, bool, error) {
	if err := ctx.Err(); err != nil {
		return game.State{}, false, err
	}
	if s == nil || s.sqlDB == nil {
		return game.State{}, false, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT enemy_name, kills, accumulated, last_update
FROM game_state
`)
	if err != nil {
		return game.State{}, false, fmt.Errorf("load game state: %w", err)
	}
	defer rows.Close()

	rec := game.Record{Enemies: map[string]game.EntityRecord{}}
	for rows.Next() {
		var (
			name        string
			kills       sql.NullString
			accumulated sql.NullString
			lastUpdate  sql.NullInt64
		)
		if err := rows.Scan(&name, &kills, &accumulated, &lastUpdate); err != nil {
			return game.State{}, false, fmt.Errorf("scan game state: %w", err)
		}
		rec.Enemies[name] = game.EntityRecord{Kills: kills.String, Accumulated: accumulated.String}
		if lastUpdate.Valid && lastUpdate.Int64 > rec.LastUpdate {
			rec.LastUpdate = lastUpdate.Int64
		}
	}
	if err := rows.Err(); err != nil {
		return game.State{}, false, fmt.Errorf("iterate game state: %w", err)
	}
	if len(rec.Enemies) == 0 {
		return game.State{}, false, nil
	}

	// A bad row costs only that entity, never the rest of the save.
	return rec.PartialState(), true, nil
}

// Save upserts one row per entity in a single transaction.
func (s *Store) Save(ctx context.Context, st game.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	rec := st.Record()
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT OR REPLACE INTO game_state (enemy_name, kills, accumulated, last_update)
VALUES (?, ?, ?, ?)
`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare save: %w", err)
	}
	defer stmt.Close()

	for name, er := range rec.Enemies {
		if _, err := stmt.ExecContext(ctx, name, er.Kills, er.Accumulated, rec.LastUpdate); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

var _ game.StateRepository = (*Store)(nil)
