package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"chatvault/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database configured for dbType.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch DialectOf(dbType) {
	case SQLite:
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// sqlite serializes writers; a single connection also keeps
		// :memory: databases and the foreign_keys pragma stable.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case MySQL:
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case Postgres:
		dsn := dbCfg.DSN
		if dsn == "" {
			dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
				dbCfg.Username,
				dbCfg.Password,
				dbCfg.Host,
				dbCfg.Port,
				dbCfg.DBName,
				dbCfg.Params,
			)
		}
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch DialectOf(driver) {
	case SQLite:
		stmts = sqliteSchema
	case MySQL:
		stmts = mysqlSchema
	case Postgres:
		stmts = postgresSchema
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", strings.ToLower(driver), err)
		}
	}
	return nil
}

// Timestamps are unix milliseconds (UTC) in every dialect so range filters
// compare integers instead of driver-specific datetime encodings.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		is_anonymous INTEGER NOT NULL DEFAULT 0,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_tokens (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		title TEXT NOT NULL,
		user_id TEXT NOT NULL,
		visibility TEXT NOT NULL DEFAULT 'private'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_user_created ON chats(user_id, created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		role TEXT NOT NULL,
		parts TEXT NOT NULL,
		attachments TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY(chat_id) REFERENCES chats(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS votes (
		chat_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		is_upvoted INTEGER NOT NULL,
		PRIMARY KEY (chat_id, message_id),
		FOREIGN KEY(chat_id) REFERENCES chats(id),
		FOREIGN KEY(message_id) REFERENCES messages(id)
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		title TEXT NOT NULL,
		content TEXT,
		kind TEXT NOT NULL DEFAULT 'text',
		user_id TEXT NOT NULL,
		PRIMARY KEY (id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS suggestions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		document_created_at INTEGER NOT NULL,
		original_text TEXT NOT NULL,
		suggested_text TEXT NOT NULL,
		description TEXT,
		is_resolved INTEGER NOT NULL DEFAULT 0,
		user_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY(document_id, document_created_at) REFERENCES documents(id, created_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestions_document ON suggestions(document_id, document_created_at)`,
	`CREATE TABLE IF NOT EXISTS streams (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY(chat_id) REFERENCES chats(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_streams_chat ON streams(chat_id, created_at)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) NOT NULL,
		email VARCHAR(255) NULL,
		password_hash VARCHAR(255) NOT NULL DEFAULT '',
		is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
		metadata JSON NOT NULL,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		UNIQUE KEY uniq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS user_tokens (
		token VARCHAR(255) NOT NULL PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL,
		INDEX idx_user_tokens_user (user_id),
		CONSTRAINT fk_user_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS chats (
		id VARCHAR(64) NOT NULL,
		created_at BIGINT NOT NULL,
		title VARCHAR(255) NOT NULL,
		user_id VARCHAR(64) NOT NULL,
		visibility VARCHAR(16) NOT NULL DEFAULT 'private',
		PRIMARY KEY (id),
		INDEX idx_chats_user_created (user_id, created_at, id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS messages (
		id VARCHAR(64) NOT NULL,
		chat_id VARCHAR(64) NOT NULL,
		role VARCHAR(32) NOT NULL,
		parts JSON NOT NULL,
		attachments JSON NOT NULL,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		INDEX idx_messages_chat_created (chat_id, created_at),
		CONSTRAINT fk_messages_chat FOREIGN KEY (chat_id) REFERENCES chats(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS votes (
		chat_id VARCHAR(64) NOT NULL,
		message_id VARCHAR(64) NOT NULL,
		is_upvoted BOOLEAN NOT NULL,
		PRIMARY KEY (chat_id, message_id),
		CONSTRAINT fk_votes_chat FOREIGN KEY (chat_id) REFERENCES chats(id),
		CONSTRAINT fk_votes_message FOREIGN KEY (message_id) REFERENCES messages(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS documents (
		id VARCHAR(64) NOT NULL,
		created_at BIGINT NOT NULL,
		title VARCHAR(255) NOT NULL,
		content MEDIUMTEXT NULL,
		kind VARCHAR(16) NOT NULL DEFAULT 'text',
		user_id VARCHAR(64) NOT NULL,
		PRIMARY KEY (id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS suggestions (
		id VARCHAR(64) NOT NULL,
		document_id VARCHAR(64) NOT NULL,
		document_created_at BIGINT NOT NULL,
		original_text MEDIUMTEXT NOT NULL,
		suggested_text MEDIUMTEXT NOT NULL,
		description TEXT NULL,
		is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
		user_id VARCHAR(64) NOT NULL,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		INDEX idx_suggestions_document (document_id, document_created_at),
		CONSTRAINT fk_suggestions_document FOREIGN KEY (document_id, document_created_at) REFERENCES documents(id, created_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS streams (
		id VARCHAR(64) NOT NULL,
		chat_id VARCHAR(64) NOT NULL,
		created_at BIGINT NOT NULL,
		PRIMARY KEY (id),
		INDEX idx_streams_chat (chat_id, created_at),
		CONSTRAINT fk_streams_chat FOREIGN KEY (chat_id) REFERENCES chats(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE,
		password_hash TEXT NOT NULL DEFAULT '',
		is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_tokens (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at BIGINT NOT NULL,
		expires_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		created_at BIGINT NOT NULL,
		title TEXT NOT NULL,
		user_id TEXT NOT NULL,
		visibility TEXT NOT NULL DEFAULT 'private'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chats_user_created ON chats(user_id, created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id),
		role TEXT NOT NULL,
		parts TEXT NOT NULL,
		attachments TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS votes (
		chat_id TEXT NOT NULL REFERENCES chats(id),
		message_id TEXT NOT NULL REFERENCES messages(id),
		is_upvoted BOOLEAN NOT NULL,
		PRIMARY KEY (chat_id, message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		title TEXT NOT NULL,
		content TEXT,
		kind TEXT NOT NULL DEFAULT 'text',
		user_id TEXT NOT NULL,
		PRIMARY KEY (id, created_at)
	)`,
	`CREATE TABLE IF NOT EXISTS suggestions (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		document_created_at BIGINT NOT NULL,
		original_text TEXT NOT NULL,
		suggested_text TEXT NOT NULL,
		description TEXT,
		is_resolved BOOLEAN NOT NULL DEFAULT FALSE,
		user_id TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		FOREIGN KEY (document_id, document_created_at) REFERENCES documents(id, created_at)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_suggestions_document ON suggestions(document_id, document_created_at)`,
	`CREATE TABLE IF NOT EXISTS streams (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id),
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_streams_chat ON streams(chat_id, created_at)`,
}
