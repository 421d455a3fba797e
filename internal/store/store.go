package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Conversation is one two-party translation session.
type Conversation struct {
	ID         string     `json:"id"`
	SourceLang string     `json:"source_lang"`
	TargetLang string     `json:"target_lang"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Entry is one translated utterance in a conversation transcript. Rows are
// append-only and never updated.
type Entry struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sequence       int       `json:"sequence"`
	Speaker        string    `json:"speaker"`
	OriginalText   string    `json:"original_text"`
	TranslatedText string    `json:"translated_text"`
	SourceLang     string    `json:"source_lang"`
	TargetLang     string    `json:"target_lang"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Store) CreateConversation(ctx context.Context, c Conversation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO conversations (id, source_lang, target_lang, started_at)
		VALUES ($1, $2, $3, $4)
	`, c.ID, c.SourceLang, c.TargetLang, c.StartedAt)
	return err
}

func (s *Store) EndConversation(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE conversations SET ended_at = $2 WHERE id = $1
	`, id, at)
	return err
}

func (s *Store) InsertEntry(ctx context.Context, e Entry) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO transcript_entries
			(id, conversation_id, sequence, speaker, original_text, translated_text, source_lang, target_lang, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.ConversationID, e.Sequence, e.Speaker, e.OriginalText, e.TranslatedText, e.SourceLang, e.TargetLang, e.CreatedAt)
	return err
}

func (s *Store) GetEntry(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	err := s.db.QueryRow(ctx, `
		SELECT id, conversation_id, sequence, speaker, original_text, translated_text, source_lang, target_lang, created_at
		FROM transcript_entries WHERE id = $1
	`, id).Scan(&e.ID, &e.ConversationID, &e.Sequence, &e.Speaker, &e.OriginalText,
		&e.TranslatedText, &e.SourceLang, &e.TargetLang, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) ListEntries(ctx context.Context, conversationID string) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, sequence, speaker, original_text, translated_text, source_lang, target_lang, created_at
		FROM transcript_entries
		WHERE conversation_id = $1
		ORDER BY sequence ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Sequence, &e.Speaker, &e.OriginalText,
			&e.TranslatedText, &e.SourceLang, &e.TargetLang, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetDisclaimerAck reads the disclaimer-acknowledged flag for a device.
// A missing row means not acknowledged.
func (s *Store) GetDisclaimerAck(ctx context.Context, deviceID string) (bool, error) {
	var ack bool
	err := s.db.QueryRow(ctx, `
		SELECT disclaimer_ack FROM device_flags WHERE device_id = $1
	`, deviceID).Scan(&ack)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return ack, nil
}

func (s *Store) SetDisclaimerAck(ctx context.Context, deviceID string, ack bool) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO device_flags (device_id, disclaimer_ack, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (device_id) DO UPDATE SET
			disclaimer_ack = EXCLUDED.disclaimer_ack,
			updated_at = EXCLUDED.updated_at
	`, deviceID, ack)
	return err
}
