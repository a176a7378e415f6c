package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/luisant/mailcore/internal/domain"
)

// dueCampaignLimit bounds how many campaigns one poll cycle picks up.
const dueCampaignLimit = 10

// Postgres implements Store against PostgreSQL.
type Postgres struct{ db *sql.DB }

// NewPostgres creates a Postgres-backed store.
func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// Open connects to PostgreSQL and verifies the connection.
func Open(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func (s *Postgres) FindDueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, subject, COALESCE(content, ''), status,
		       scheduled_at, sent_at, sender_id, created_at, updated_at
		FROM campaigns
		WHERE (status = 'scheduled' AND scheduled_at <= $1)
		   OR status = 'sending'
		ORDER BY scheduled_at ASC NULLS LAST
		LIMIT $2
	`, now, dueCampaignLimit)
	if err != nil {
		return nil, fmt.Errorf("find due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		var c domain.Campaign
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Subject, &c.Content, &c.Status,
			&c.ScheduledAt, &c.SentAt, &c.SenderID, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) ListPendingRecipients(ctx context.Context, campaignID string) ([]domain.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, email, first_name, last_name,
		       COALESCE(custom_fields, '{}'::jsonb), status, sent_at
		FROM recipients
		WHERE campaign_id = $1 AND status = 'pending'
		ORDER BY created_at ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list pending recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var r domain.Recipient
		var fields []byte
		if err := rows.Scan(
			&r.ID, &r.CampaignID, &r.Email, &r.FirstName, &r.LastName,
			&fields, &r.Status, &r.SentAt,
		); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &r.CustomFields); err != nil {
				// A malformed custom_fields blob degrades personalization,
				// it does not block the send.
				r.CustomFields = nil
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) GetSenderByID(ctx context.Context, id string) (*domain.Sender, error) {
	sender := &domain.Sender{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, COALESCE(name, ''), COALESCE(provider, ''),
		       COALESCE(host, ''), COALESCE(port, 0), COALESCE(password, ''),
		       COALESCE(access_token, ''), COALESCE(refresh_token, ''), expires_at,
		       COALESCE(inbound_host, ''), COALESCE(inbound_port, 0)
		FROM senders
		WHERE id = $1
	`, id).Scan(
		&sender.ID, &sender.Email, &sender.Name, &sender.Provider,
		&sender.Host, &sender.Port, &sender.Password,
		&sender.AccessToken, &sender.RefreshToken, &sender.ExpiresAt,
		&sender.InboundHost, &sender.InboundPort,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSenderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sender: %w", err)
	}
	return sender, nil
}

func (s *Postgres) UpdateCampaignStatus(ctx context.Context, id string, status domain.CampaignStatus, sentAt *time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, sent_at = COALESCE($3, sent_at), updated_at = NOW()
		WHERE id = $1
	`, id, status, sentAt)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

func (s *Postgres) UpdateRecipientStatus(ctx context.Context, id string, status domain.RecipientStatus, sentAt *time.Time) error {
	// The CASE guard enforces monotonicity: a terminal recipient keeps its
	// state even under a racing retry, silently, while a genuinely missing
	// row still affects zero rows and surfaces as not-found.
	res, err := s.db.ExecContext(ctx, `
		UPDATE recipients
		SET status  = CASE WHEN status = 'pending' THEN $2 ELSE status END,
		    sent_at = CASE WHEN status = 'pending' THEN COALESCE($3, sent_at) ELSE sent_at END
		WHERE id = $1
	`, id, status, sentAt)
	if err != nil {
		return fmt.Errorf("update recipient status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecipientNotFound
	}
	return nil
}

func (s *Postgres) ApplyAnalyticsDelta(ctx context.Context, campaignID string, counter Counter, n int) error {
	var column string
	switch counter {
	case CounterSent:
		column = "total_sent"
	case CounterOpened:
		column = "total_opened"
	case CounterClicked:
		column = "total_clicked"
	case CounterBounced:
		column = "total_bounced"
	default:
		return fmt.Errorf("unknown analytics counter %q", counter)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin analytics tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf(`UPDATE campaign_analytics SET %s = %s + $2 WHERE campaign_id = $1`, column, column),
		campaignID, n)
	if err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrAnalyticsNotFound
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE campaign_analytics
		SET open_rate   = CASE WHEN total_sent <= 0 THEN 0 ELSE LEAST(100, GREATEST(0, total_opened  * 100.0 / total_sent)) END,
		    click_rate  = CASE WHEN total_sent <= 0 THEN 0 ELSE LEAST(100, GREATEST(0, total_clicked * 100.0 / total_sent)) END,
		    bounce_rate = CASE WHEN total_sent <= 0 THEN 0 ELSE LEAST(100, GREATEST(0, total_bounced * 100.0 / total_sent)) END
		WHERE campaign_id = $1
	`, campaignID)
	if err != nil {
		return fmt.Errorf("recompute rates: %w", err)
	}

	return tx.Commit()
}

func (s *Postgres) GetAnalytics(ctx context.Context, campaignID string) (*domain.Analytics, error) {
	a := &domain.Analytics{}
	err := s.db.QueryRowContext(ctx, `
		SELECT campaign_id, total_sent, total_opened, total_clicked, total_bounced,
		       open_rate, click_rate, bounce_rate
		FROM campaign_analytics
		WHERE campaign_id = $1
	`, campaignID).Scan(
		&a.CampaignID, &a.TotalSent, &a.TotalOpened, &a.TotalClicked, &a.TotalBounced,
		&a.OpenRate, &a.ClickRate, &a.BounceRate,
	)
	if err == sql.ErrNoRows {
		return nil, ErrAnalyticsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analytics: %w", err)
	}
	return a, nil
}

func (s *Postgres) UpdateSenderTokens(ctx context.Context, senderID, accessToken, refreshToken string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE senders
		SET access_token = $2, refresh_token = $3, expires_at = $4
		WHERE id = $1
	`, senderID, accessToken, refreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("update sender tokens: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSenderNotFound
	}
	return nil
}
