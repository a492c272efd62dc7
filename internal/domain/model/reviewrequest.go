package model

import "time"

// ReviewRequest is the unit of code change under review, analogous to a
// pull request. Buildhub mirrors the fields it needs for config matching
// and build dispatch; the review tool itself owns the full record.
type ReviewRequest struct {
	ID          int64
	Scope       string // Owning scope; empty string means the global site.
	Repository  string
	Branch      string
	Groups      []string // Review groups assigned to the request.
	Submitter   string
	Summary     string
	Description string
}

// ConditionTarget returns the view of the review request that integration
// config conditions are evaluated against.
func (rr ReviewRequest) ConditionTarget() ConditionTarget {
	return ConditionTarget{
		Repository: rr.Repository,
		Branch:     rr.Branch,
		Groups:     rr.Groups,
		Submitter:  rr.Submitter,
	}
}

// DiffSet is the patch content associated with a review request at a given
// revision.
type DiffSet struct {
	ID              int64
	ReviewRequestID int64
	Revision        int
	BaseCommitID    string // Commit the diff applies on top of.
	CreatedAt       time.Time
}

// ChangeDescription is the metadata describing what changed between two
// publishes of the same review request. AddedDiffID is set when the publish
// added a new diff revision; metadata-only updates leave it nil.
type ChangeDescription struct {
	ID              int64
	ReviewRequestID int64
	AddedDiffID     *int64
}

// ChangeEvent represents a single review-request publish action. It is
// constructed fresh per event and never persisted.
type ChangeEvent struct {
	ReviewRequestID     int64
	ChangeDescriptionID *int64 // Set on updates to an existing request; nil on first publish.
	ActingUser          string
	Scope               string
}
