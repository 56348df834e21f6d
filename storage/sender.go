package storage

import (
	"context"
	"database/sql"

	"github.com/ammarfaizi2/green-tea-bot/errors"
)

// SenderFoundation resolves a message sender to its primary key,
// inserting the sender on first sight.
type SenderFoundation interface {
	GetPK(ctx context.Context, conn *Conn) (uint64, error)
}

// SenderUser is a sender backed by a Telegram user account.
type SenderUser struct {
	TgUserID  int64
	Username  string
	FirstName string
	LastName  string
}

// GetPK looks the user up by Telegram ID and inserts it when missing.
// The insert path uses LAST_INSERT_ID(id) so a concurrent insert of
// the same user still yields the winning row's key.
func (s *SenderUser) GetPK(ctx context.Context, conn *Conn) (uint64, error) {
	var pk uint64
	err := conn.QueryRowContext(ctx,
		"SELECT id FROM gt_users WHERE tg_user_id = ?", s.TgUserID).Scan(&pk)
	if err == nil {
		return pk, nil
	}
	if err != sql.ErrNoRows {
		return 0, errors.WrapTransient(err, "SenderUser", "GetPK", "select user")
	}

	res, err := conn.ExecContext(ctx,
		`INSERT INTO gt_users (tg_user_id, username, first_name, last_name)
		 VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		 id = LAST_INSERT_ID(id),
		 username = VALUES(username),
		 first_name = VALUES(first_name),
		 last_name = VALUES(last_name)`,
		s.TgUserID, s.Username, s.FirstName, s.LastName)
	if err != nil {
		return 0, errors.WrapTransient(err, "SenderUser", "GetPK", "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "SenderUser", "GetPK", "read insert id")
	}
	return uint64(id), nil
}
