package model

// BuildPrep is the bundle of data assembled once per triggering event and
// consumed by both config matching and build dispatch. Providers may narrow
// Configs or populate Extra during their Prepare hook; all subsequent
// processing for the event honors the narrowed list.
type BuildPrep struct {
	Configs       []IntegrationConfig
	DiffSet       DiffSet
	ReviewRequest ReviewRequest
	User          BotUser            // Bot user owning the resulting status updates.
	ChangeDesc    *ChangeDescription // Nil on a first publish.
	ServerURL     string             // Externally reachable URL for the event's scope.
	APIToken      string             // Bot API token providers echo back on callbacks.

	// Extra holds provider-declared extension state, set during Prepare
	// and read back during StartBuild. Each provider defines its own
	// concrete type for it.
	Extra any
}
