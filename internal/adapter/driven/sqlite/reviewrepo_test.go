package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/buildhub/internal/domain/model"
)

func TestReviewRepo_UpsertAndGetReviewRequest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepo(db)
	ctx := context.Background()

	rr := model.ReviewRequest{
		ID:         7,
		Scope:      "team-x",
		Repository: "backend",
		Branch:     "release/2.0",
		Groups:     []string{"security", "platform"},
		Submitter:  "alice",
		Summary:    "Fix login race",
	}
	require.NoError(t, repo.UpsertReviewRequest(ctx, rr))

	got, err := repo.GetReviewRequest(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "team-x", got.Scope)
	assert.Equal(t, "backend", got.Repository)
	assert.Equal(t, []string{"security", "platform"}, got.Groups)
	assert.Equal(t, "alice", got.Submitter)

	// Upsert replaces rather than duplicating.
	rr.Branch = "main"
	require.NoError(t, repo.UpsertReviewRequest(ctx, rr))
	got, err = repo.GetReviewRequest(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "main", got.Branch)
}

func TestReviewRepo_GetReviewRequestMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepo(db)

	got, err := repo.GetReviewRequest(context.Background(), 999)

	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReviewRepo_NoGroupsStaysNil(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertReviewRequest(ctx, model.ReviewRequest{ID: 1, Repository: "backend"}))

	got, err := repo.GetReviewRequest(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got.Groups)
}

func TestReviewRepo_DiffOrdering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertReviewRequest(ctx, model.ReviewRequest{ID: 1, Repository: "backend"}))

	for revision, base := range map[int]string{2: "def456", 1: "abc123", 3: "ghi789"} {
		require.NoError(t, repo.InsertDiff(ctx, &model.DiffSet{
			ReviewRequestID: 1,
			Revision:        revision,
			BaseCommitID:    base,
		}))
	}

	latest, err := repo.LatestDiff(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 3, latest.Revision)
	assert.Equal(t, "ghi789", latest.BaseCommitID)

	earliest, err := repo.EarliestDiff(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, earliest)
	assert.Equal(t, 1, earliest.Revision)
	assert.Equal(t, "abc123", earliest.BaseCommitID)
}

func TestReviewRepo_DiffsMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepo(db)
	ctx := context.Background()

	latest, err := repo.LatestDiff(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, latest)

	diff, err := repo.GetDiff(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, diff)
}

func TestReviewRepo_ChangeDescriptions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReviewRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertReviewRequest(ctx, model.ReviewRequest{ID: 1, Repository: "backend"}))

	diff := &model.DiffSet{ReviewRequestID: 1, Revision: 1}
	require.NoError(t, repo.InsertDiff(ctx, diff))

	withDiff := &model.ChangeDescription{ReviewRequestID: 1, AddedDiffID: &diff.ID}
	require.NoError(t, repo.InsertChangeDescription(ctx, withDiff))

	metadataOnly := &model.ChangeDescription{ReviewRequestID: 1}
	require.NoError(t, repo.InsertChangeDescription(ctx, metadataOnly))

	got, err := repo.GetChangeDescription(ctx, withDiff.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AddedDiffID)
	assert.Equal(t, diff.ID, *got.AddedDiffID)

	got, err = repo.GetChangeDescription(ctx, metadataOnly.ID)
	require.NoError(t, err)
	assert.Nil(t, got.AddedDiffID)

	got, err = repo.GetChangeDescription(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}
