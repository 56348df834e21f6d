package storage

import (
	"context"
	"time"

	"github.com/ammarfaizi2/green-tea-bot/errors"
)

// Message is the write model for one incoming chat message.
type Message struct {
	ChatID    int64
	ChatTitle string

	TgMsgID        int64
	ReplyToTgMsgID int64
	MsgType        string

	SenderUserID    int64
	SenderUsername  string
	SenderFirstName string
	SenderLastName  string

	Text   string
	TgDate time.Time

	IsEdited    bool
	IsForwarded bool
}

// Save upserts the owning group, resolves the sender and writes the
// message plus its content. Rows are keyed by (chat_id, tg_msg_id), so
// saving the same message again updates it in place.
func (m *Message) Save(ctx context.Context, conn *Conn) error {
	groupPK, err := m.upsertGroup(ctx, conn)
	if err != nil {
		return err
	}

	sender := &SenderUser{
		TgUserID:  m.SenderUserID,
		Username:  m.SenderUsername,
		FirstName: m.SenderFirstName,
		LastName:  m.SenderLastName,
	}
	senderPK, err := sender.GetPK(ctx, conn)
	if err != nil {
		return err
	}

	msgType := m.MsgType
	if msgType == "" {
		msgType = "text"
	}
	res, err := conn.ExecContext(ctx,
		`INSERT INTO gt_messages
		 (chat_id, sender_id, tg_msg_id, reply_to_tg_msg_id, msg_type, is_edited, is_forwarded)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		 id = LAST_INSERT_ID(id),
		 sender_id = VALUES(sender_id),
		 is_edited = VALUES(is_edited),
		 is_forwarded = VALUES(is_forwarded)`,
		groupPK, senderPK, m.TgMsgID, m.ReplyToTgMsgID, msgType, m.IsEdited, m.IsForwarded)
	if err != nil {
		return errors.WrapTransient(err, "Message", "Save", "insert message")
	}
	msgPK, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "Message", "Save", "read insert id")
	}

	tgDate := m.TgDate
	if tgDate.IsZero() {
		tgDate = time.Now().UTC()
	}
	_, err = conn.ExecContext(ctx,
		`INSERT INTO gt_message_content (id, text, tg_date)
		 VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE
		 text = VALUES(text),
		 tg_date = VALUES(tg_date)`,
		msgPK, m.Text, tgDate)
	if err != nil {
		return errors.WrapTransient(err, "Message", "Save", "insert message content")
	}
	return nil
}

func (m *Message) upsertGroup(ctx context.Context, conn *Conn) (uint64, error) {
	res, err := conn.ExecContext(ctx,
		`INSERT INTO gt_groups (tg_group_id, name)
		 VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE
		 id = LAST_INSERT_ID(id),
		 name = IF(VALUES(name) <> '', VALUES(name), name)`,
		m.ChatID, m.ChatTitle)
	if err != nil {
		return 0, errors.WrapTransient(err, "Message", "Save", "upsert group")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "Message", "Save", "read insert id")
	}
	return uint64(id), nil
}
