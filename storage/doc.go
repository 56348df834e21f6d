// Package storage persists Telegram chats, senders and messages to MySQL.
//
// # Overview
//
// The package is built around three pieces:
//   - Pool: a fixed-size stack of lazily-opened database connections.
//     Workers acquire a Conn per task and return it when done; when the
//     stack is empty Get fails fast instead of queueing, so callers can
//     apply their own backpressure.
//   - Message: the write model for one incoming message. Save upserts
//     the owning group, resolves the sender and writes the message row
//     plus its content row.
//   - SenderFoundation: resolve-or-insert of a message sender into its
//     primary key. SenderUser is the account-backed implementation.
//
// # Connection Pool
//
// Pool sits on top of database/sql. The sql.DB handle is capped to the
// pool size, and each slot holds a dedicated sql.Conn session. Slots
// are opened on first acquire with retry around the dial, so a pool of
// 128 against an idle daemon costs nothing until traffic arrives.
//
// Example:
//
//	pool, err := storage.NewPool(cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Get(ctx)
//	if err != nil {
//		return err
//	}
//	defer pool.Put(conn)
//
//	msg := &storage.Message{ChatID: chatID, TgMsgID: msgID, Text: text}
//	return msg.Save(ctx, conn)
//
// # Schema
//
// Migrate applies the gt_* table schema: gt_groups, gt_users,
// gt_messages and gt_message_content. Message rows are unique per
// (chat_id, tg_msg_id), so replayed updates collapse into updates of
// the existing row.
package storage
