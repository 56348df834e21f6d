package storage

import (
	"context"
	"database/sql"

	"github.com/ammarfaizi2/green-tea-bot/errors"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS gt_groups (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		tg_group_id BIGINT NOT NULL,
		name VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NULL DEFAULT NULL ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY idx_tg_group_id (tg_group_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS gt_users (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		tg_user_id BIGINT NOT NULL,
		username VARCHAR(64) NOT NULL DEFAULT '',
		first_name VARCHAR(255) NOT NULL DEFAULT '',
		last_name VARCHAR(255) NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NULL DEFAULT NULL ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY idx_tg_user_id (tg_user_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS gt_messages (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		chat_id BIGINT UNSIGNED NOT NULL,
		sender_id BIGINT UNSIGNED NOT NULL,
		tg_msg_id BIGINT NOT NULL,
		reply_to_tg_msg_id BIGINT NOT NULL DEFAULT 0,
		msg_type VARCHAR(32) NOT NULL DEFAULT 'text',
		is_edited TINYINT(1) NOT NULL DEFAULT 0,
		is_forwarded TINYINT(1) NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NULL DEFAULT NULL ON UPDATE CURRENT_TIMESTAMP,
		PRIMARY KEY (id),
		UNIQUE KEY idx_chat_msg (chat_id, tg_msg_id),
		KEY idx_sender_id (sender_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS gt_message_content (
		id BIGINT UNSIGNED NOT NULL,
		text TEXT NOT NULL,
		tg_date DATETIME NOT NULL,
		PRIMARY KEY (id),
		KEY idx_tg_date (tg_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// Migrate applies the message-logging schema. Statements are
// idempotent so repeated runs are safe.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "storage", "Migrate", "apply schema")
		}
	}
	return nil
}
