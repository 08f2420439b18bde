package conversation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// MessageLog is the append-only transcript of a conversation.
type MessageLog interface {
	Append(ctx context.Context, conversationID uuid.UUID, role, content string) error
	Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]ChatMessage, error)
}

// PgMessageLog stores transcript rows in conversation_messages.
type PgMessageLog struct {
	db *sql.DB
}

func NewPgMessageLog(db *sql.DB) *PgMessageLog {
	if db == nil {
		panic("conversation: message log requires a database handle")
	}
	return &PgMessageLog{db: db}
}

func (l *PgMessageLog) Append(ctx context.Context, conversationID uuid.UUID, role, content string) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, NOW())`,
		uuid.New(), conversationID, role, content,
	)
	if err != nil {
		return fmt.Errorf("conversation: append message: %w", err)
	}
	return nil
}

// Recent returns up to limit messages in chronological order.
func (l *PgMessageLog) Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT role, content
		FROM (
			SELECT role, content, created_at
			FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("conversation: list recent messages: %w", err)
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: list recent messages: %w", err)
	}
	return messages, nil
}
