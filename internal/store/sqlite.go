package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when the referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrMissingID means a write succeeded but produced no row identifier.
	ErrMissingID = errors.New("row persisted without identifier")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate row")
)

// Fixed width so that lexical order of the stored text is chronological order.
const timeLayout = "2006-01-02T15:04:05.000000"

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	if !strings.Contains(dataSourceName, "_foreign_keys") {
		sep := "?"
		if strings.Contains(dataSourceName, "?") {
			sep = "&"
		}
		dataSourceName += sep + "_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        email TEXT UNIQUE NOT NULL,
        hashed_password TEXT NOT NULL,
        full_name TEXT,
        is_active BOOLEAN NOT NULL DEFAULT TRUE,
        is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
        created_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        summary TEXT,
        created_at TEXT NOT NULL,
        modified_at TEXT NOT NULL,
        owner_id INTEGER NOT NULL,
        FOREIGN KEY (owner_id) REFERENCES users (id)
    );

    CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations (owner_id);

    CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        created_at TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
        content TEXT NOT NULL,
        conversation_id INTEGER NOT NULL,
        owner_id INTEGER NOT NULL,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id) ON DELETE CASCADE,
        FOREIGN KEY (owner_id) REFERENCES users (id)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertedID(res sql.Result) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted id: %w", err)
	}
	if id == 0 {
		return 0, ErrMissingID
	}
	return id, nil
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

// User methods
func (s *SQLiteStore) CreateUser(ctx context.Context, in UserCreate) (*User, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (email, hashed_password, full_name, is_active, is_superuser, created_at) VALUES (?, ?, ?, TRUE, ?, ?)",
		in.Email, in.HashedPassword, in.FullName, in.IsSuperuser, now.Format(timeLayout))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := insertedID(res)
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

const userColumns = "id, email, hashed_password, full_name, is_active, is_superuser, created_at"

func scanUser(row *sql.Row) (*User, error) {
	var user User
	var fullName sql.NullString
	var createdAt string
	err := row.Scan(&user.ID, &user.Email, &user.HashedPassword, &fullName, &user.IsActive, &user.IsSuperuser, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if fullName.Valid {
		user.FullName = &fullName.String
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// Conversation methods
func createConversation(ctx context.Context, db execer, ownerID int64, now time.Time) (*Conversation, error) {
	ts := now.Format(timeLayout)
	res, err := db.ExecContext(ctx,
		"INSERT INTO conversations (summary, created_at, modified_at, owner_id) VALUES (NULL, ?, ?, ?)",
		ts, ts, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute conversation insert: %w", err)
	}
	id, err := insertedID(res)
	if err != nil {
		return nil, err
	}
	created := now.Truncate(time.Microsecond)
	return &Conversation{ID: id, OwnerID: ownerID, CreatedAt: created, ModifiedAt: created}, nil
}

// CreateConversation creates an empty conversation owned by ownerID.
func (s *SQLiteStore) CreateConversation(ctx context.Context, ownerID int64) (*Conversation, error) {
	return createConversation(ctx, s.db, ownerID, s.now())
}

// StartConversation creates a conversation together with its first message in one transaction.
func (s *SQLiteStore) StartConversation(ctx context.Context, ownerID int64, role Role, content string) (*Conversation, *Message, error) {
	var (
		conv *Conversation
		msg  *Message
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		var err error
		if conv, err = createConversation(ctx, tx, ownerID, now); err != nil {
			return err
		}
		msg, err = createMessage(ctx, tx, MessageCreate{
			ConversationID: conv.ID,
			OwnerID:        ownerID,
			Role:           role,
			Content:        content,
		}, now)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return conv, msg, nil
}

func getConversationRow(ctx context.Context, db execer, id int64) (*Conversation, error) {
	var conv Conversation
	var summary sql.NullString
	var createdAt, modifiedAt string
	err := db.QueryRowContext(ctx,
		"SELECT id, summary, created_at, modified_at, owner_id FROM conversations WHERE id = ?", id).
		Scan(&conv.ID, &summary, &createdAt, &modifiedAt, &conv.OwnerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if summary.Valid {
		conv.Summary = &summary.String
	}
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if conv.ModifiedAt, err = parseTime(modifiedAt); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversation returns the conversation with its messages in conversation order.
func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*Conversation, error) {
	conv, err := getConversationRow(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	conv.Messages, err = s.GetMessagesByConversationID(ctx, id)
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns one page of the owner's conversations and the owner's total count.
func (s *SQLiteStore) ListConversations(ctx context.Context, ownerID int64, skip, limit int) ([]Conversation, int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations WHERE owner_id = ?", ownerID).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("failed to count conversations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, summary, created_at, modified_at, owner_id FROM conversations WHERE owner_id = ? ORDER BY id ASC LIMIT ? OFFSET ?",
		ownerID, limit, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	conversations := []Conversation{}
	for rows.Next() {
		var conv Conversation
		var summary sql.NullString
		var createdAt, modifiedAt string
		if err := rows.Scan(&conv.ID, &summary, &createdAt, &modifiedAt, &conv.OwnerID); err != nil {
			return nil, 0, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		if summary.Valid {
			conv.Summary = &summary.String
		}
		if conv.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, 0, err
		}
		if conv.ModifiedAt, err = parseTime(modifiedAt); err != nil {
			return nil, 0, err
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return conversations, count, nil
}

// UpdateConversation applies the non-nil fields of in and bumps modified_at.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, id int64, in ConversationUpdate) (*Conversation, error) {
	sets := []string{"modified_at = ?"}
	args := []any{s.now().Format(timeLayout)}
	if in.Summary != nil {
		sets = append(sets, "summary = ?")
		args = append(args, *in.Summary)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE conversations SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute conversation update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return getConversationRow(ctx, s.db, id)
}

// DeleteConversation removes the conversation and every message in it.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete conversation messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Message methods
func createMessage(ctx context.Context, db execer, in MessageCreate, now time.Time) (*Message, error) {
	ts := now.Format(timeLayout)
	res, err := db.ExecContext(ctx,
		"INSERT INTO messages (created_at, role, content, conversation_id, owner_id) VALUES (?, ?, ?, ?, ?)",
		ts, string(in.Role), in.Content, in.ConversationID, in.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute message insert: %w", err)
	}
	id, err := insertedID(res)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:             id,
		Role:           in.Role,
		Content:        in.Content,
		CreatedAt:      now.Truncate(time.Microsecond),
		ConversationID: in.ConversationID,
		OwnerID:        in.OwnerID,
	}, nil
}

// CreateMessage appends a message to an existing conversation.
func (s *SQLiteStore) CreateMessage(ctx context.Context, in MessageCreate) (*Message, error) {
	if _, err := ParseRole(string(in.Role)); err != nil {
		return nil, err
	}
	var msg *Message
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getConversationRow(ctx, tx, in.ConversationID); err != nil {
			return err
		}
		var err error
		msg, err = createMessage(ctx, tx, in, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetMessagesByConversationID returns messages in insertion order.
func (s *SQLiteStore) GetMessagesByConversationID(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, created_at, role, content, conversation_id, owner_id FROM messages WHERE conversation_id = ? ORDER BY id ASC",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		var createdAt, role string
		if err := rows.Scan(&msg.ID, &createdAt, &role, &msg.Content, &msg.ConversationID, &msg.OwnerID); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Role = Role(role)
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
