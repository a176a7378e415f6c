package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/luisant/mailcore/internal/domain"
)

func setupTestDB(t *testing.T) (*Postgres, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return NewPostgres(db), mock, func() { db.Close() }
}

func TestFindDueCampaigns(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	sched := now.Add(-time.Minute)
	senderID := "sender-1"

	rows := sqlmock.NewRows([]string{
		"id", "name", "subject", "content", "status",
		"scheduled_at", "sent_at", "sender_id", "created_at", "updated_at",
	}).AddRow("c1", "Launch", "Hello {{firstName}}", "Body", "scheduled",
		sched, nil, senderID, now, now)

	mock.ExpectQuery("SELECT id, name, subject").
		WithArgs(now, dueCampaignLimit).
		WillReturnRows(rows)

	out, err := s.FindDueCampaigns(context.Background(), now)
	if err != nil {
		t.Fatalf("FindDueCampaigns: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d campaigns, want 1", len(out))
	}
	c := out[0]
	if c.ID != "c1" || c.Status != domain.CampaignScheduled {
		t.Errorf("campaign = %+v", c)
	}
	if c.SenderID == nil || *c.SenderID != senderID {
		t.Errorf("sender id = %v, want %s", c.SenderID, senderID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestListPendingRecipientsParsesCustomFields(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{
		"id", "campaign_id", "email", "first_name", "last_name",
		"custom_fields", "status", "sent_at",
	}).
		AddRow("r1", "c1", "ann@example.com", "Ann", nil, []byte(`{"company":"Acme"}`), "pending", nil).
		AddRow("r2", "c1", "bob@example.com", nil, nil, []byte(`{}`), "pending", nil)

	mock.ExpectQuery("SELECT id, campaign_id, email").
		WithArgs("c1").
		WillReturnRows(rows)

	out, err := s.ListPendingRecipients(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ListPendingRecipients: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d recipients, want 2", len(out))
	}
	if out[0].CustomFields["company"] != "Acme" {
		t.Errorf("custom fields = %v", out[0].CustomFields)
	}
	if out[0].FirstName == nil || *out[0].FirstName != "Ann" {
		t.Errorf("first name = %v", out[0].FirstName)
	}
}

func TestUpdateRecipientStatusMissingRow(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// Zero rows matched means the recipient does not exist.
	mock.ExpectExec("UPDATE recipients").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateRecipientStatus(context.Background(), "r1", domain.RecipientSent, nil)
	if err != ErrRecipientNotFound {
		t.Errorf("err = %v, want ErrRecipientNotFound for missing recipient", err)
	}
}

func TestUpdateRecipientStatusTerminalIsNoop(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	// An already-terminal recipient still matches its row; the CASE guard
	// keeps the state and the call succeeds without error.
	mock.ExpectExec("UPDATE recipients").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateRecipientStatus(context.Background(), "r1", domain.RecipientFailed, nil); err != nil {
		t.Errorf("err = %v, want nil for already-terminal recipient", err)
	}
}

func TestApplyAnalyticsDelta(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE campaign_analytics SET total_sent = total_sent").
		WithArgs("c1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE campaign_analytics").
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.ApplyAnalyticsDelta(context.Background(), "c1", CounterSent, 3); err != nil {
		t.Fatalf("ApplyAnalyticsDelta: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestApplyAnalyticsDeltaUnknownCounter(t *testing.T) {
	s, _, cleanup := setupTestDB(t)
	defer cleanup()

	if err := s.ApplyAnalyticsDelta(context.Background(), "c1", Counter("total_bogus"), 1); err == nil {
		t.Error("expected error for unknown counter")
	}
}

func TestGetSenderByIDNotFound(t *testing.T) {
	s, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT id, email").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	if _, err := s.GetSenderByID(context.Background(), "nope"); err != ErrSenderNotFound {
		t.Errorf("err = %v, want ErrSenderNotFound", err)
	}
}
