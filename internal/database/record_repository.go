package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/guildcrawl/internal/domain"
)

// DefaultTable is where records land when no table is configured.
const DefaultTable = "public.disboard_servers"

var (
	// ErrRecordNotFound is returned by Get for an unknown guild ID.
	ErrRecordNotFound = errors.New("server record not found")

	errInvalidTable = errors.New("invalid table name")
	tableNameRe     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

// RecordRepository persists server records keyed by guild ID.
type RecordRepository struct {
	db    *sqlx.DB
	table string
}

// NewRecordRepository creates a repository writing to table.
func NewRecordRepository(db *sqlx.DB, table string) (*RecordRepository, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", errInvalidTable, table)
	}
	return &RecordRepository{db: db, table: table}, nil
}

// Table returns the target table name.
func (r *RecordRepository) Table() string {
	return r.table
}

// EnsureSchema creates the records table when missing. Production PostgreSQL
// schemas are managed externally; this exists for the embedded SQLite store.
func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + r.table + ` (
		guild_id TEXT PRIMARY KEY,
		platform_link TEXT NOT NULL,
		scrape_time DOUBLE PRECISION NOT NULL,
		server_name TEXT NOT NULL DEFAULT '',
		server_description TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		category TEXT NOT NULL DEFAULT ''
	)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure schema %s: %w", r.table, err)
	}
	return nil
}

// Upsert inserts rec or, when guild_id already exists, overwrites its mutable
// fields. guild_id and platform_link are never modified by a conflict update.
func (r *RecordRepository) Upsert(ctx context.Context, rec domain.ServerRecord) error {
	tags, err := rec.TagsJSON()
	if err != nil {
		return fmt.Errorf("encode tags for %s: %w", rec.GuildID, err)
	}

	query := r.db.Rebind(`
		INSERT INTO ` + r.table + ` (scrape_time, platform_link, guild_id, server_name, server_description, tags, category)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (guild_id) DO UPDATE SET
			scrape_time = EXCLUDED.scrape_time,
			server_name = EXCLUDED.server_name,
			server_description = EXCLUDED.server_description,
			tags = EXCLUDED.tags,
			category = EXCLUDED.category`)

	_, err = r.db.ExecContext(ctx, query,
		rec.ScrapeTime,
		rec.PlatformLink,
		rec.GuildID,
		rec.ServerName,
		rec.ServerDescription,
		tags,
		rec.Category,
	)
	if err != nil {
		return fmt.Errorf("upsert guild %s: %w", rec.GuildID, err)
	}
	return nil
}

type recordRow struct {
	ScrapeTime        float64 `db:"scrape_time"`
	PlatformLink      string  `db:"platform_link"`
	GuildID           string  `db:"guild_id"`
	ServerName        string  `db:"server_name"`
	ServerDescription string  `db:"server_description"`
	Tags              string  `db:"tags"`
	Category          string  `db:"category"`
}

// Get loads a record by guild ID.
func (r *RecordRepository) Get(ctx context.Context, guildID string) (domain.ServerRecord, error) {
	query := r.db.Rebind(`SELECT scrape_time, platform_link, guild_id, server_name, server_description,
		CAST(tags AS TEXT) AS tags, category FROM ` + r.table + ` WHERE guild_id = ?`)

	var row recordRow
	if err := r.db.GetContext(ctx, &row, query, guildID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ServerRecord{}, ErrRecordNotFound
		}
		return domain.ServerRecord{}, fmt.Errorf("get guild %s: %w", guildID, err)
	}

	tags, err := decodeTags(row.Tags)
	if err != nil {
		return domain.ServerRecord{}, fmt.Errorf("decode tags for %s: %w", guildID, err)
	}

	return domain.ServerRecord{
		ScrapeTime:        row.ScrapeTime,
		PlatformLink:      row.PlatformLink,
		GuildID:           row.GuildID,
		ServerName:        row.ServerName,
		ServerDescription: row.ServerDescription,
		Tags:              tags,
		Category:          row.Category,
	}, nil
}

// Count returns the number of stored records.
func (r *RecordRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM `+r.table); err != nil {
		return 0, fmt.Errorf("count %s: %w", r.table, err)
	}
	return n, nil
}

// Ping verifies the connection.
func (r *RecordRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func decodeTags(raw string) ([]domain.Tag, error) {
	if raw == "" {
		return nil, nil
	}

	var entries []map[string]string
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	tags := make([]domain.Tag, 0, len(entries))
	for _, entry := range entries {
		for id, name := range entry {
			tags = append(tags, domain.Tag{ID: id, Name: name})
		}
	}
	return tags, nil
}
