package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// nextMessageID reserves the next id in roomID. It must run inside the
// transaction that inserts the message so a rolled back append never burns an id.
func nextMessageID(ctx context.Context, tx *sqlx.Tx, roomID string) (int64, error) {
	var id int64
	err := tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO room_sequences (room_id, last_id) VALUES (?, 1)
        ON CONFLICT (room_id) DO UPDATE SET last_id = room_sequences.last_id + 1
        RETURNING last_id`), roomID).Scan(&id)
	return id, err
}

// lastMessageID returns the highest id assigned in roomID, or 0.
func lastMessageID(ctx context.Context, db *sqlx.DB, roomID string) (int64, error) {
	var id int64
	err := db.GetContext(ctx, &id, db.Rebind(`SELECT COALESCE(MAX(last_id), 0) FROM room_sequences WHERE room_id=?`), roomID)
	return id, err
}
