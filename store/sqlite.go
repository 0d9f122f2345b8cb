package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parleyhq/parley/core"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a durable implementation of the conversation, subject and
// exploration contracts backed by a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) a SQLite-backed store at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		age_years INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		thread_id TEXT NOT NULL,
		title TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_subject ON conversations(subject_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS exploration_topics (
		conversation_id TEXT PRIMARY KEY,
		topic_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		current_question_number INTEGER NOT NULL,
		total_questions INTEGER NOT NULL,
		initial_concern TEXT NOT NULL,
		pending_json TEXT,
		exploration_json TEXT NOT NULL,
		deep_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateConversation persists a new conversation for a subject.
func (s *SQLiteStore) CreateConversation(ctx context.Context, subjectID string) (*core.Conversation, error) {
	conv := core.NewConversation(subjectID)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, subject_id, thread_id, title, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)`,
		conv.ID, conv.SubjectID, conv.ThreadID, conv.Title, conv.CreatedAt.Unix(), conv.UpdatedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns the conversation with its ordered message history.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*core.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, thread_id, title, is_active, created_at, updated_at
		FROM conversations WHERE id = ?`, id)

	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg core.Message
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.CreatedAt = time.Unix(createdAt, 0).UTC()
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return conv, nil
}

// ListConversations returns the subject's conversations newest first,
// without message bodies.
func (s *SQLiteStore) ListConversations(ctx context.Context, subjectID string) ([]*core.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, thread_id, title, is_active, created_at, updated_at
		FROM conversations WHERE subject_id = ? ORDER BY created_at DESC`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []*core.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// AppendMessages atomically appends messages within one transaction.
func (s *SQLiteStore) AppendMessages(ctx context.Context, id string, msgs []core.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM conversations WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check conversation: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
	}

	for _, msg := range msgs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			msg.ID, id, msg.Role, msg.Content, msg.CreatedAt.Unix(),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`,
		time.Now().Unix(), id); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

// SetTitle rewrites the conversation title.
func (s *SQLiteStore) SetTitle(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
	}
	return nil
}

// DeleteConversation removes the conversation, its messages and any
// exploration state.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", core.ErrConversationNotFound, id)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM exploration_topics WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete exploration: %w", err)
	}
	return tx.Commit()
}

// GetSubject returns the subject profile or core.ErrSubjectNotFound.
func (s *SQLiteStore) GetSubject(ctx context.Context, id string) (*core.Subject, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, age_years FROM subjects WHERE id = ?`, id)
	var sub core.Subject
	if err := row.Scan(&sub.ID, &sub.Name, &sub.AgeYears); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrSubjectNotFound, id)
		}
		return nil, fmt.Errorf("scan subject: %w", err)
	}
	return &sub, nil
}

// PutSubject creates or updates a subject profile.
func (s *SQLiteStore) PutSubject(ctx context.Context, sub *core.Subject) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subjects (id, name, age_years) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, age_years = excluded.age_years`,
		sub.ID, sub.Name, sub.AgeYears,
	)
	if err != nil {
		return fmt.Errorf("upsert subject: %w", err)
	}
	return nil
}

// GetExploration returns the active topic for a conversation.
func (s *SQLiteStore) GetExploration(ctx context.Context, conversationID string) (*core.ExplorationState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, topic_id, phase, current_question_number, total_questions,
		       initial_concern, pending_json, exploration_json, deep_json, created_at, updated_at
		FROM exploration_topics WHERE conversation_id = ?`, conversationID)

	var state core.ExplorationState
	var pendingJSON sql.NullString
	var explorationJSON, deepJSON string
	var createdAt, updatedAt int64

	err := row.Scan(
		&state.ConversationID, &state.TopicID, &state.Phase, &state.CurrentQuestionNumber,
		&state.TotalQuestions, &state.InitialConcern, &pendingJSON, &explorationJSON, &deepJSON,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversation %s", core.ErrExplorationNotFound, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan exploration: %w", err)
	}

	state.CreatedAt = time.Unix(createdAt, 0).UTC()
	state.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if err := json.Unmarshal([]byte(explorationJSON), &state.ExplorationQA); err != nil {
		return nil, fmt.Errorf("decode exploration qa: %w", err)
	}
	if err := json.Unmarshal([]byte(deepJSON), &state.DeepQA); err != nil {
		return nil, fmt.Errorf("decode deep qa: %w", err)
	}
	if pendingJSON.Valid {
		var pq core.QuestionAnswer
		if err := json.Unmarshal([]byte(pendingJSON.String), &pq); err != nil {
			return nil, fmt.Errorf("decode pending question: %w", err)
		}
		state.PendingQuestion = &pq
	}
	return &state, nil
}

// PutExploration stores or replaces the topic state for its conversation.
func (s *SQLiteStore) PutExploration(ctx context.Context, state *core.ExplorationState) error {
	explorationJSON, err := json.Marshal(state.ExplorationQA)
	if err != nil {
		return fmt.Errorf("encode exploration qa: %w", err)
	}
	deepJSON, err := json.Marshal(state.DeepQA)
	if err != nil {
		return fmt.Errorf("encode deep qa: %w", err)
	}
	var pendingJSON interface{}
	if state.PendingQuestion != nil {
		b, err := json.Marshal(state.PendingQuestion)
		if err != nil {
			return fmt.Errorf("encode pending question: %w", err)
		}
		pendingJSON = string(b)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exploration_topics (
			conversation_id, topic_id, phase, current_question_number, total_questions,
			initial_concern, pending_json, exploration_json, deep_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			topic_id = excluded.topic_id,
			phase = excluded.phase,
			current_question_number = excluded.current_question_number,
			total_questions = excluded.total_questions,
			initial_concern = excluded.initial_concern,
			pending_json = excluded.pending_json,
			exploration_json = excluded.exploration_json,
			deep_json = excluded.deep_json,
			updated_at = excluded.updated_at`,
		state.ConversationID, state.TopicID, state.Phase, state.CurrentQuestionNumber,
		state.TotalQuestions, state.InitialConcern, pendingJSON, string(explorationJSON),
		string(deepJSON), state.CreatedAt.Unix(), state.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert exploration: %w", err)
	}
	return nil
}

// DeleteExploration discards a topic. Unknown conversations are a no-op.
func (s *SQLiteStore) DeleteExploration(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exploration_topics WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("delete exploration: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*core.Conversation, error) {
	var conv core.Conversation
	var isActive int
	var createdAt, updatedAt int64
	err := row.Scan(&conv.ID, &conv.SubjectID, &conv.ThreadID, &conv.Title, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}
	conv.IsActive = isActive == 1
	conv.CreatedAt = time.Unix(createdAt, 0).UTC()
	conv.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &conv, nil
}

var (
	_ core.ConversationStore = (*SQLiteStore)(nil)
	_ core.ExplorationStore  = (*SQLiteStore)(nil)
	_ core.SubjectDirectory  = (*SQLiteStore)(nil)
)
