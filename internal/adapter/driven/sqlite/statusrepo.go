package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.StatusStore = (*StatusRepo)(nil)

// StatusRepo is the SQLite implementation of the StatusStore port interface.
type StatusRepo struct {
	db *DB
}

// NewStatusRepo creates a new StatusRepo backed by the given DB.
func NewStatusRepo(db *DB) *StatusRepo {
	return &StatusRepo{db: db}
}

const statusColumns = `id, review_request_id, change_description_id, config_id, provider,
	summary, description, state, url, url_text, can_retry, user_id, timestamp`

// Create inserts a new status update and sets its ID. The timestamp is
// assigned by the database.
func (r *StatusRepo) Create(ctx context.Context, update *model.StatusUpdate) error {
	const query = `
		INSERT INTO status_updates
			(review_request_id, change_description_id, config_id, provider,
			 summary, description, state, url, url_text, can_retry, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var changeDescID any
	if update.ChangeDescriptionID != nil {
		changeDescID = *update.ChangeDescriptionID
	}

	res, err := r.db.Writer.ExecContext(ctx, query,
		update.ReviewRequestID, changeDescID, update.ConfigID, update.Provider,
		update.Summary, update.Description, string(update.State),
		update.URL, update.URLText, boolToInt(update.CanRetry), update.UserID,
	)
	if err != nil {
		return fmt.Errorf("insert status update: %w", err)
	}

	update.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("status update insert id: %w", err)
	}

	return nil
}

// GetByID returns the status update with the given ID, or nil if it does
// not exist.
func (r *StatusRepo) GetByID(ctx context.Context, id int64) (*model.StatusUpdate, error) {
	query := `SELECT ` + statusColumns + ` FROM status_updates WHERE id = ?`

	update, err := scanStatusUpdate(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get status update %d: %w", id, err)
	}

	return update, nil
}

// ListByReviewRequest returns all status updates for a review request,
// newest first.
func (r *StatusRepo) ListByReviewRequest(ctx context.Context, reviewRequestID int64) ([]model.StatusUpdate, error) {
	query := `
		SELECT ` + statusColumns + `
		FROM status_updates
		WHERE review_request_id = ?
		ORDER BY id DESC
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, reviewRequestID)
	if err != nil {
		return nil, fmt.Errorf("query status updates for review request %d: %w", reviewRequestID, err)
	}
	defer rows.Close()

	var updates []model.StatusUpdate
	for rows.Next() {
		update, err := scanStatusUpdate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan status update: %w", err)
		}
		updates = append(updates, *update)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status updates: %w", err)
	}

	return updates, nil
}

// Update writes only the named fields. An empty field list is a no-op that
// never touches the database.
func (r *StatusRepo) Update(ctx context.Context, update *model.StatusUpdate, fields []string) error {
	if len(fields) == 0 {
		return nil
	}

	assignments := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)

	for _, field := range fields {
		var value any
		switch field {
		case driven.StatusFieldState:
			value = string(update.State)
		case driven.StatusFieldDescription:
			value = update.Description
		case driven.StatusFieldURL:
			value = update.URL
		case driven.StatusFieldURLText:
			value = update.URLText
		case driven.StatusFieldTimestamp:
			value = update.Timestamp.UTC().Format("2006-01-02T15:04:05Z")
		default:
			return fmt.Errorf("unknown status update field %q", field)
		}

		assignments = append(assignments, field+" = ?")
		args = append(args, value)
	}

	args = append(args, update.ID)

	query := "UPDATE status_updates SET " + strings.Join(assignments, ", ") + " WHERE id = ?"

	if _, err := r.db.Writer.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update status update %d: %w", update.ID, err)
	}

	return nil
}

func scanStatusUpdate(s scanner) (*model.StatusUpdate, error) {
	var update model.StatusUpdate
	var changeDescID sql.NullInt64
	var state, timestamp string
	var canRetry int

	err := s.Scan(
		&update.ID, &update.ReviewRequestID, &changeDescID, &update.ConfigID,
		&update.Provider, &update.Summary, &update.Description, &state,
		&update.URL, &update.URLText, &canRetry, &update.UserID, &timestamp,
	)
	if err != nil {
		return nil, err
	}

	if changeDescID.Valid {
		id := changeDescID.Int64
		update.ChangeDescriptionID = &id
	}
	update.State = model.BuildState(state)
	update.CanRetry = canRetry != 0

	update.Timestamp, err = parseTime(timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp: %w", err)
	}

	return &update, nil
}
