package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// StateStore persists ConversationState across turns and process
// restarts. Load returns nil when no state exists; Save with a nil
// state clears it.
type StateStore interface {
	Load(ctx context.Context, conversationID uuid.UUID) (*ConversationState, error)
	Save(ctx context.Context, conversationID uuid.UUID, state *ConversationState) error
}

// PgStateStore keeps state as a JSON column on the conversation row.
type PgStateStore struct {
	db *sql.DB
}

func NewPgStateStore(db *sql.DB) *PgStateStore {
	if db == nil {
		panic("conversation: state store requires a database handle")
	}
	return &PgStateStore{db: db}
}

// EnsureConversation creates the conversation row if it does not exist.
func (s *PgStateStore) EnsureConversation(ctx context.Context, conversationID, patientID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, patient_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING`,
		conversationID, patientID,
	)
	if err != nil {
		return fmt.Errorf("conversation: ensure conversation: %w", err)
	}
	return nil
}

func (s *PgStateStore) Load(ctx context.Context, conversationID uuid.UUID) (*ConversationState, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM conversations WHERE id = $1`,
		conversationID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: load state: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	var state ConversationState
	if err := json.Unmarshal([]byte(raw.String), &state); err != nil {
		return nil, fmt.Errorf("conversation: decode state: %w", err)
	}
	return &state, nil
}

func (s *PgStateStore) Save(ctx context.Context, conversationID uuid.UUID, state *ConversationState) error {
	var payload any
	if state != nil {
		encoded, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("conversation: encode state: %w", err)
		}
		payload = string(encoded)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET state = $2, updated_at = NOW() WHERE id = $1`,
		conversationID, payload,
	)
	if err != nil {
		return fmt.Errorf("conversation: save state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("conversation: save state: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("conversation: save state: conversation %s not found", conversationID)
	}
	return nil
}
