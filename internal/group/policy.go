package group

// Policy is the raw numbering and ordering configuration for channel groups,
// captured from the settings subsystem. Groups never read configuration
// themselves: a Policy snapshot is handed in at Load time and again on every
// settings change notification.
type Policy struct {
	// SyncGroups enables pulling group membership from the backends.
	SyncGroups bool
	// BackendOrder sorts channels the way the backends deliver them.
	BackendOrder bool
	// BackendNumbers makes group-local numbers equal the backend numbers.
	BackendNumbers bool
	// BackendNumbersAlways applies BackendNumbers even with several enabled
	// backends, where numbers from different backends may collide.
	BackendNumbersAlways bool
	// StartFromOne numbers user defined groups 1..N instead of inheriting
	// numbers from the all channels group.
	StartFromOne bool
}

// effectivePolicy is the policy after resolving flag interactions against
// the current backend population. This is what groups store and evaluate.
type effectivePolicy struct {
	syncGroups        bool
	useBackendOrder   bool
	useBackendNumbers bool
	startFromOne      bool
}

// resolve computes the effective policy. Backend numbers only apply with a
// single enabled backend unless BackendNumbersAlways is set, and numbering
// groups from one is meaningless while backend numbers are in use.
func (p Policy) resolve(enabledBackends int) effectivePolicy {
	useBackendNumbers := p.BackendNumbers &&
		(enabledBackends == 1 || (p.BackendNumbersAlways && enabledBackends > 1))

	return effectivePolicy{
		syncGroups:        p.SyncGroups,
		useBackendOrder:   p.BackendOrder,
		useBackendNumbers: useBackendNumbers,
		startFromOne:      p.StartFromOne && !useBackendNumbers,
	}
}
