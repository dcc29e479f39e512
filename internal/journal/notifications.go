package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies a notification row.
type NotificationType string

const (
	NotificationPending  NotificationType = "pending"
	NotificationApproved NotificationType = "approved"
	NotificationRejected NotificationType = "rejected"
	NotificationInfo     NotificationType = "info"
	NotificationSuccess  NotificationType = "success"
	NotificationError    NotificationType = "error"
)

// Notification is a user-facing message row. A notification is active while
// DismissedAt is nil.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	ProposalID  string           `json:"proposal_id,omitempty"`
	TraceID     string           `json:"trace_id,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	DismissedAt *time.Time       `json:"dismissed_at,omitempty"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// NotifyOption configures a Notify call.
type NotifyOption func(*Notification)

// WithNotifyTrace attaches a trace id.
func WithNotifyTrace(traceID string) NotifyOption {
	return func(n *Notification) { n.TraceID = traceID }
}

// WithProposal attaches a proposal (changeset) id.
func WithProposal(id string) NotifyOption {
	return func(n *Notification) { n.ProposalID = id }
}

// WithMetadata attaches structured metadata.
func WithMetadata(meta map[string]any) NotifyOption {
	return func(n *Notification) { n.Metadata = meta }
}

// Notify inserts a notification row and returns its id. Unlike Log this is
// synchronous; notifications are rare and callers want the id back.
func (j *Journal) Notify(ctx context.Context, typ NotificationType, message string, opts ...NotifyOption) (string, error) {
	n := &Notification{
		ID:        uuid.NewString(),
		Type:      typ,
		Message:   message,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(n)
	}

	metadata := "{}"
	if len(n.Metadata) > 0 {
		data, err := json.Marshal(n.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to encode notification metadata: %w", err)
		}
		metadata = string(data)
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO notifications (id, type, message, proposal_id, trace_id, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, string(n.Type), n.Message, nullable(n.ProposalID), nullable(n.TraceID),
		n.CreatedAt.UnixNano(), metadata)
	if err != nil {
		return "", fmt.Errorf("failed to insert notification: %w", err)
	}
	return n.ID, nil
}

// Dismiss marks a notification dismissed. The first dismissal wins; a second
// dismiss is a no-op and does not change the original timestamp.
func (j *Journal) Dismiss(ctx context.Context, id string) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE notifications SET dismissed_at = ?
		WHERE id = ? AND dismissed_at IS NULL`,
		time.Now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to dismiss notification %s: %w", id, err)
	}
	return nil
}

// ActiveNotifications returns all notifications that have not been
// dismissed, oldest first.
func (j *Journal) ActiveNotifications(ctx context.Context) ([]Notification, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, type, message, proposal_id, trace_id, created_at, dismissed_at, metadata
		FROM notifications WHERE dismissed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// Notification returns a single notification by id.
func (j *Journal) Notification(ctx context.Context, id string) (*Notification, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, type, message, proposal_id, trace_id, created_at, dismissed_at, metadata
		FROM notifications WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("notification %s not found", id)
	}
	n, err := scanNotification(rows)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func scanNotification(rows *sql.Rows) (Notification, error) {
	var (
		n           Notification
		typ         string
		proposalID  sql.NullString
		traceID     sql.NullString
		createdAt   int64
		dismissedAt sql.NullInt64
		metadata    string
	)
	if err := rows.Scan(&n.ID, &typ, &n.Message, &proposalID, &traceID,
		&createdAt, &dismissedAt, &metadata); err != nil {
		return Notification{}, fmt.Errorf("failed to scan notification row: %w", err)
	}
	n.Type = NotificationType(typ)
	n.ProposalID = proposalID.String
	n.TraceID = traceID.String
	n.CreatedAt = time.Unix(0, createdAt)
	if dismissedAt.Valid {
		t := time.Unix(0, dismissedAt.Int64)
		n.DismissedAt = &t
	}
	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &n.Metadata); err != nil {
			return Notification{}, fmt.Errorf("failed to decode notification metadata: %w", err)
		}
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
