package settings

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"prayerbell/internal/prayer"
	logx "prayerbell/pkg/logx"
)

//go:embed migrations.sql
var migrations string

const (
	kvToggles = "toggles"
	kvThrough = "scheduled_through"
	kvChat    = "chat"
)

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount    atomic.Uint64
	pruneEvery uint64
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("settings.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("settings migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log, pruneEvery: 500}, nil
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (State, error) {
	var st State
	prefs, err := s.loadPreferences(ctx)
	if err != nil {
		return State{}, err
	}
	st.Preferences = prefs

	if ok, err := s.getKV(ctx, kvToggles, &st.Toggles); err != nil {
		return State{}, err
	} else if ok {
		st.TogglesSaved = true
	}
	if _, err := s.getKV(ctx, kvThrough, &st.ScheduledThrough); err != nil {
		return State{}, err
	}
	var chat struct {
		ChatID   int64 `json:"chat_id"`
		ThreadID int   `json:"thread_id"`
	}
	if _, err := s.getKV(ctx, kvChat, &chat); err != nil {
		return State{}, err
	}
	st.ChatID, st.ThreadID = chat.ChatID, chat.ThreadID

	var updated sql.NullString
	_ = s.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM kv`).Scan(&updated)
	if updated.Valid {
		st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated.String)
	}
	return st, nil
}

// loadPreferences returns nil when no preference was ever saved.
func (s *sqliteStore) loadPreferences(ctx context.Context) (prayer.Preferences, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT category, start_enabled, start_offset, expire_enabled, expire_offset FROM preferences`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out prayer.Preferences
	for rows.Next() {
		var (
			name string
			p    prayer.NotificationPreference
		)
		if err := rows.Scan(&name, &p.StartEnabled, &p.StartOffset, &p.ExpireEnabled, &p.ExpireOffset); err != nil {
			return nil, err
		}
		c, err := prayer.ParseCategory(name)
		if err != nil {
			s.log.Warn("unknown category in settings", logx.String("category", name))
			continue
		}
		if out == nil {
			out = prayer.Preferences{}
		}
		out[c] = p.Normalize()
	}
	return out, rows.Err()
}

func (s *sqliteStore) getKV(ctx context.Context, key string, out any) (bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("settings %s: %w", key, err)
	}
	return true, nil
}

func (s *sqliteStore) putKV(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, string(b), time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) SavePreference(ctx context.Context, c prayer.Category, p prayer.NotificationPreference) error {
	p = p.Normalize()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preferences(category, start_enabled, start_offset, expire_enabled, expire_offset, updated_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(category) DO UPDATE SET
		   start_enabled=excluded.start_enabled, start_offset=excluded.start_offset,
		   expire_enabled=excluded.expire_enabled, expire_offset=excluded.expire_offset,
		   updated_at=excluded.updated_at`,
		c.Key(), p.StartEnabled, p.StartOffset, p.ExpireEnabled, p.ExpireOffset, time.Now().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) SaveToggles(ctx context.Context, t prayer.Toggles) error {
	return s.putKV(ctx, kvToggles, t)
}

func (s *sqliteStore) SaveScheduledThrough(ctx context.Context, through time.Time) error {
	return s.putKV(ctx, kvThrough, through)
}

func (s *sqliteStore) SaveChat(ctx context.Context, chatID int64, threadID int) error {
	return s.putKV(ctx, kvChat, map[string]any{"chat_id": chatID, "thread_id": threadID})
}

func (s *sqliteStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dedup(key, until) VALUES(?,?)
		 ON CONFLICT(key) DO UPDATE SET until=excluded.until`,
		key, until.UnixMilli(),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_, _ = s.db.ExecContext(pctx, `DELETE FROM dedup WHERE until < ?`, time.Now().UnixMilli())
		cancel()
	}
	return err
}

func (s *sqliteStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, `SELECT until FROM dedup WHERE key = ?`, key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}
