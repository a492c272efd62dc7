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
var _ driven.ReviewStore = (*ReviewRepo)(nil)

// ReviewRepo is the SQLite implementation of the ReviewStore port
// interface. Review request, diff, and change description rows are
// mirrored from the review tool; the orchestration core reads them and the
// sync surface writes them.
type ReviewRepo struct {
	db *DB
}

// NewReviewRepo creates a new ReviewRepo backed by the given DB.
func NewReviewRepo(db *DB) *ReviewRepo {
	return &ReviewRepo{db: db}
}

// GetReviewRequest returns the review request with the given ID, or nil if
// it does not exist.
func (r *ReviewRepo) GetReviewRequest(ctx context.Context, id int64) (*model.ReviewRequest, error) {
	const query = `
		SELECT id, scope, repository, branch, review_groups, submitter, summary, description
		FROM review_requests
		WHERE id = ?
	`

	var rr model.ReviewRequest
	var groups string

	err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(
		&rr.ID, &rr.Scope, &rr.Repository, &rr.Branch,
		&groups, &rr.Submitter, &rr.Summary, &rr.Description,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get review request %d: %w", id, err)
	}

	rr.Groups = splitGroups(groups)

	return &rr, nil
}

// UpsertReviewRequest stores or replaces a review request row mirrored
// from the review tool.
func (r *ReviewRepo) UpsertReviewRequest(ctx context.Context, rr model.ReviewRequest) error {
	const query = `
		INSERT OR REPLACE INTO review_requests
			(id, scope, repository, branch, review_groups, submitter, summary, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Writer.ExecContext(ctx, query,
		rr.ID, rr.Scope, rr.Repository, rr.Branch,
		strings.Join(rr.Groups, ","), rr.Submitter, rr.Summary, rr.Description,
	)
	if err != nil {
		return fmt.Errorf("upsert review request %d: %w", rr.ID, err)
	}
	return nil
}

// InsertDiff stores a new diff revision and sets its ID.
func (r *ReviewRepo) InsertDiff(ctx context.Context, diff *model.DiffSet) error {
	const query = `
		INSERT INTO diffsets (review_request_id, revision, base_commit_id)
		VALUES (?, ?, ?)
	`

	res, err := r.db.Writer.ExecContext(ctx, query,
		diff.ReviewRequestID, diff.Revision, diff.BaseCommitID,
	)
	if err != nil {
		return fmt.Errorf("insert diff for review request %d: %w", diff.ReviewRequestID, err)
	}

	diff.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("diff insert id: %w", err)
	}
	return nil
}

// InsertChangeDescription stores a new change description and sets its ID.
func (r *ReviewRepo) InsertChangeDescription(ctx context.Context, cd *model.ChangeDescription) error {
	const query = `
		INSERT INTO change_descriptions (review_request_id, added_diff_id)
		VALUES (?, ?)
	`

	var addedDiffID any
	if cd.AddedDiffID != nil {
		addedDiffID = *cd.AddedDiffID
	}

	res, err := r.db.Writer.ExecContext(ctx, query, cd.ReviewRequestID, addedDiffID)
	if err != nil {
		return fmt.Errorf("insert change description for review request %d: %w", cd.ReviewRequestID, err)
	}

	cd.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("change description insert id: %w", err)
	}
	return nil
}

// GetChangeDescription returns the change description with the given ID,
// or nil if it does not exist.
func (r *ReviewRepo) GetChangeDescription(ctx context.Context, id int64) (*model.ChangeDescription, error) {
	const query = `
		SELECT id, review_request_id, added_diff_id
		FROM change_descriptions
		WHERE id = ?
	`

	var cd model.ChangeDescription
	var addedDiffID sql.NullInt64

	err := r.db.Reader.QueryRowContext(ctx, query, id).Scan(&cd.ID, &cd.ReviewRequestID, &addedDiffID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get change description %d: %w", id, err)
	}

	if addedDiffID.Valid {
		diffID := addedDiffID.Int64
		cd.AddedDiffID = &diffID
	}

	return &cd, nil
}

// LatestDiff returns the newest diff on the review request, or nil if no
// diff has been published yet.
func (r *ReviewRepo) LatestDiff(ctx context.Context, reviewRequestID int64) (*model.DiffSet, error) {
	return r.diffByOrder(ctx, reviewRequestID, "DESC")
}

// EarliestDiff returns the oldest diff on the review request, or nil if no
// diff has been published yet.
func (r *ReviewRepo) EarliestDiff(ctx context.Context, reviewRequestID int64) (*model.DiffSet, error) {
	return r.diffByOrder(ctx, reviewRequestID, "ASC")
}

func (r *ReviewRepo) diffByOrder(ctx context.Context, reviewRequestID int64, order string) (*model.DiffSet, error) {
	query := `
		SELECT id, review_request_id, revision, base_commit_id, created_at
		FROM diffsets
		WHERE review_request_id = ?
		ORDER BY revision ` + order + `
		LIMIT 1
	`

	diff, err := scanDiff(r.db.Reader.QueryRowContext(ctx, query, reviewRequestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get diff for review request %d: %w", reviewRequestID, err)
	}

	return diff, nil
}

// GetDiff returns the diff with the given ID, or nil if it does not exist.
func (r *ReviewRepo) GetDiff(ctx context.Context, id int64) (*model.DiffSet, error) {
	const query = `
		SELECT id, review_request_id, revision, base_commit_id, created_at
		FROM diffsets
		WHERE id = ?
	`

	diff, err := scanDiff(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get diff %d: %w", id, err)
	}

	return diff, nil
}

func scanDiff(s scanner) (*model.DiffSet, error) {
	var diff model.DiffSet
	var createdAt string

	err := s.Scan(&diff.ID, &diff.ReviewRequestID, &diff.Revision, &diff.BaseCommitID, &createdAt)
	if err != nil {
		return nil, err
	}

	diff.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &diff, nil
}

func splitGroups(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
