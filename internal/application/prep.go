package application

// PrepOutcome is the explicit result of build preparation. Each rejection
// path is a distinct outcome so callers and tests can tell them apart
// without relying on error values or log output.
type PrepOutcome int

const (
	// PrepReady means a BuildPrep was assembled and builds should proceed.
	PrepReady PrepOutcome = iota
	// PrepNoConfigs means no enabled config matched the change.
	PrepNoConfigs
	// PrepNoDiff means the review request has no published diff yet.
	PrepNoDiff
	// PrepNoNewDiff means the publish was an update that did not add a
	// new diff revision; metadata-only updates do not trigger builds.
	PrepNoNewDiff
	// PrepVetoed means the provider's Prepare hook declined the batch.
	PrepVetoed
	// PrepConfigGone means a rerun's originating config no longer exists.
	PrepConfigGone
	// PrepAmbiguousConfig means a rerun could not be narrowed to exactly
	// one config. This is a data-integrity signal, not a build failure.
	PrepAmbiguousConfig
	// PrepDiffGone means a rerun's original diff could not be resolved.
	PrepDiffGone
)

// String returns a short name for the outcome, used in log lines.
func (o PrepOutcome) String() string {
	switch o {
	case PrepReady:
		return "ready"
	case PrepNoConfigs:
		return "no matching configs"
	case PrepNoDiff:
		return "no diff"
	case PrepNoNewDiff:
		return "no new diff"
	case PrepVetoed:
		return "vetoed by provider"
	case PrepConfigGone:
		return "config gone"
	case PrepAmbiguousConfig:
		return "ambiguous config"
	case PrepDiffGone:
		return "diff gone"
	default:
		return "unknown"
	}
}
