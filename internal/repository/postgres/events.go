package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/sendcore/internal/domain"
)

// EventRepo persists delivery events. The table is append-only: events
// are never updated or deleted once written.
type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, ev *domain.DeliveryEvent) error {
	var (
		bounceClass, dsnCode, errorText      sql.NullString
		feedbackType, reportedBy             sql.NullString
		engagementIP, userAgent, clickTarget sql.NullString
	)
	if ev.Bounce != nil {
		bounceClass = sql.NullString{String: string(ev.Bounce.Class), Valid: true}
		dsnCode = sql.NullString{String: ev.Bounce.DSNCode, Valid: true}
		errorText = sql.NullString{String: ev.Bounce.ErrorText, Valid: true}
	}
	if ev.Complaint != nil {
		feedbackType = sql.NullString{String: ev.Complaint.FeedbackType, Valid: true}
		reportedBy = sql.NullString{String: ev.Complaint.ReportedBy, Valid: true}
	}
	if ev.Engagement != nil {
		engagementIP = sql.NullString{String: ev.Engagement.IP, Valid: true}
		userAgent = sql.NullString{String: ev.Engagement.UserAgent, Valid: true}
		clickTarget = sql.NullString{String: ev.Engagement.URL, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_events
			(id, message_id, tenant_id, recipient, type,
			 bounce_class, dsn_code, error_text,
			 feedback_type, reported_by,
			 engagement_ip, user_agent, click_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, ev.ID, ev.MessageID, ev.TenantID, ev.Recipient, ev.Type,
		bounceClass, dsnCode, errorText,
		feedbackType, reportedBy,
		engagementIP, userAgent, clickTarget, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append delivery event: %w", err)
	}
	return nil
}

// ForMessage returns the event history of a message, oldest first.
func (r *EventRepo) ForMessage(ctx context.Context, messageID string) ([]domain.DeliveryEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, message_id, tenant_id, recipient, type,
		       bounce_class, dsn_code, error_text,
		       feedback_type, reported_by,
		       engagement_ip, user_agent, click_url, created_at
		FROM delivery_events
		WHERE message_id = $1
		ORDER BY created_at ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("events for message: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func scanEvent(rows *sql.Rows) (domain.DeliveryEvent, error) {
	var (
		ev                                   domain.DeliveryEvent
		bounceClass, dsnCode, errorText      sql.NullString
		feedbackType, reportedBy             sql.NullString
		engagementIP, userAgent, clickTarget sql.NullString
	)
	if err := rows.Scan(&ev.ID, &ev.MessageID, &ev.TenantID, &ev.Recipient, &ev.Type,
		&bounceClass, &dsnCode, &errorText,
		&feedbackType, &reportedBy,
		&engagementIP, &userAgent, &clickTarget, &ev.CreatedAt); err != nil {
		return ev, fmt.Errorf("scan delivery event: %w", err)
	}
	if bounceClass.Valid {
		ev.Bounce = &domain.BounceData{
			Class:     domain.BounceClass(bounceClass.String),
			DSNCode:   dsnCode.String,
			ErrorText: errorText.String,
		}
	}
	if feedbackType.Valid {
		ev.Complaint = &domain.ComplaintData{
			FeedbackType: feedbackType.String,
			ReportedBy:   reportedBy.String,
		}
	}
	if engagementIP.Valid || userAgent.Valid || clickTarget.Valid {
		ev.Engagement = &domain.EngagementData{
			IP:        engagementIP.String,
			UserAgent: userAgent.String,
			URL:       clickTarget.String,
		}
	}
	return ev, nil
}
