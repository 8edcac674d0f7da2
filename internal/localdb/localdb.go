// Package localdb はTwitchのOAuthトークンをSQLiteに保存する。
package localdb

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"go.uber.org/zap"
)

// ErrNoToken はトークンがまだ保存されていない場合に返される。
var ErrNoToken = errors.New("no token stored")

type Token struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	ExpiresAt    int64
}

type DB struct {
	db *sql.DB
}

// Open opens (and migrates) the SQLite database at path.
func Open(path string) (*DB, error) {
	// WALモードとBusy Timeoutを設定
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLiteは単一ライターなので接続プールを1に制限
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS tokens (
		id INTEGER PRIMARY KEY,
		access_token TEXT,
		refresh_token TEXT,
		scope TEXT,
		expires_at INTEGER
	)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tokens table: %w", err)
	}

	logger.Debug("Database ready", zap.String("path", path))
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// SaveToken stores t as the latest token.
func (d *DB) SaveToken(t Token) error {
	_, err := d.db.Exec(`INSERT INTO tokens (access_token, refresh_token, scope, expires_at) VALUES (?, ?, ?, ?)`,
		t.AccessToken, t.RefreshToken, t.Scope, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	// 古いトークンは残さない
	if _, err := d.db.Exec(`DELETE FROM tokens WHERE id NOT IN (SELECT MAX(id) FROM tokens)`); err != nil {
		logger.Warn("Failed to prune old tokens", zap.Error(err))
	}
	return nil
}

// LatestToken returns the most recently saved token or ErrNoToken.
func (d *DB) LatestToken() (Token, error) {
	var t Token
	err := d.db.QueryRow(`SELECT access_token, refresh_token, scope, expires_at FROM tokens ORDER BY id DESC LIMIT 1`).
		Scan(&t.AccessToken, &t.RefreshToken, &t.Scope, &t.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Token{}, ErrNoToken
	}
	if err != nil {
		return Token{}, fmt.Errorf("failed to load token: %w", err)
	}
	return t, nil
}

// DeleteAllTokens forces the next start to re-authenticate.
func (d *DB) DeleteAllTokens() error {
	if _, err := d.db.Exec("DELETE FROM tokens"); err != nil {
		return fmt.Errorf("failed to delete tokens: %w", err)
	}
	logger.Info("All tokens have been deleted")
	return nil
}
