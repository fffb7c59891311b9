package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

// EmailPayload is the outbox record drained by the jobs worker.
type EmailPayload struct {
	UserID  string `json:"userId"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type Notification struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Service struct {
	DB          *pgxpool.Pool
	Mailer      Mailer
	DefaultFrom string
}

func New(db *pgxpool.Pool, mailer Mailer, from string) *Service {
	return &Service{DB: db, Mailer: mailer, DefaultFrom: from}
}

// Enqueue records an in-app notification and an outbox email event inside the
// caller's transaction. Nothing is sent here; the jobs worker drains the
// outbox, so a transition never waits on SMTP.
func (s *Service) Enqueue(ctx context.Context, tx pgx.Tx, userID, ntype, title, body string) error {
	if userID == "" {
		return nil
	}
	if _, err := tx.Exec(ctx, `
    INSERT INTO notifications (user_id, type, title, body)
    VALUES ($1,$2,$3,$4)
  `, userID, ntype, title, body); err != nil {
		return err
	}

	payload, err := json.Marshal(EmailPayload{UserID: userID, Subject: title, Body: body})
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
    INSERT INTO outbox_events (kind, payload_json)
    VALUES ('email', $1)
  `, payload)
	return err
}

// EnqueueMany fans one notification out to several users.
func (s *Service) EnqueueMany(ctx context.Context, tx pgx.Tx, userIDs []string, ntype, title, body string) error {
	for _, userID := range userIDs {
		if err := s.Enqueue(ctx, tx, userID, ntype, title, body); err != nil {
			return err
		}
	}
	return nil
}

// DrainOutbox delivers due outbox events. Locked rows are skipped so several
// workers can drain concurrently without double-sending.
func (s *Service) DrainOutbox(ctx context.Context, batch int) (int, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
    SELECT id, payload_json, attempts
    FROM outbox_events
    WHERE processed_at IS NULL AND next_attempt_at <= now() AND kind = 'email'
    ORDER BY created_at
    LIMIT $1
    FOR UPDATE SKIP LOCKED
  `, batch)
	if err != nil {
		return 0, err
	}

	type pending struct {
		id       string
		payload  []byte
		attempts int
	}
	var events []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.payload, &p.attempts); err != nil {
			rows.Close()
			return 0, err
		}
		events = append(events, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	sent := 0
	for _, evt := range events {
		var payload EmailPayload
		if err := json.Unmarshal(evt.payload, &payload); err != nil {
			if _, uerr := tx.Exec(ctx, "UPDATE outbox_events SET processed_at = now(), last_error = $1 WHERE id = $2", "unreadable payload", evt.id); uerr != nil {
				return sent, uerr
			}
			continue
		}

		if err := s.deliver(ctx, payload); err != nil {
			backoff := time.Duration(evt.attempts+1) * time.Minute
			if _, uerr := tx.Exec(ctx, `
        UPDATE outbox_events
        SET attempts = attempts + 1, next_attempt_at = now() + $1, last_error = $2
        WHERE id = $3
      `, backoff, err.Error(), evt.id); uerr != nil {
				return sent, uerr
			}
			slog.Warn("outbox email delivery failed", "eventId", evt.id, "err", err)
			continue
		}

		if _, uerr := tx.Exec(ctx, "UPDATE outbox_events SET processed_at = now(), last_error = '' WHERE id = $1", evt.id); uerr != nil {
			return sent, uerr
		}
		sent++
	}

	if err := tx.Commit(ctx); err != nil {
		return sent, err
	}
	return sent, nil
}

func (s *Service) deliver(ctx context.Context, payload EmailPayload) error {
	if s.Mailer == nil {
		return nil
	}
	var email string
	if err := s.DB.QueryRow(ctx, "SELECT email FROM users WHERE id = $1", payload.UserID).Scan(&email); err != nil {
		return err
	}
	if email == "" {
		return nil
	}
	return s.Mailer.Send(ctx, s.DefaultFrom, email, payload.Subject, payload.Body)
}

func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]Notification, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, type, title, body, read_at, created_at
    FROM notifications
    WHERE user_id = $1
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
  `, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	_, err := s.DB.Exec(ctx, "UPDATE notifications SET read_at = now() WHERE id = $1 AND user_id = $2", notificationID, userID)
	return err
}
