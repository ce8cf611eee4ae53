package session

// DefaultCapabilities is the starting point for a brand-new account:
// neither mode engaged, neither onboarding started.
func DefaultCapabilities() AccountCapabilities {
	return AccountCapabilities{
		Coach:  ModeCapability{Available: false, SetupStatus: SetupNotStarted},
		Client: ModeCapability{Available: false, SetupStatus: SetupNotStarted},
	}
}

// MergeCapabilities reconciles server-reported capabilities with a locally
// optimistic baseline. The merge is per mode and field-level, not a
// whole-record overwrite: when the server reports not_started but the local
// baseline is in_progress, the local value is kept - the server has not yet
// observed an onboarding step the client already knows is underway. In every
// other pairing the server value wins, which also means a local complete can
// be downgraded by a stale server report.
func MergeCapabilities(local, server AccountCapabilities) AccountCapabilities {
	return AccountCapabilities{
		Coach:  mergeCapability(local.Coach, server.Coach),
		Client: mergeCapability(local.Client, server.Client),
	}
}

func mergeCapability(local, server ModeCapability) ModeCapability {
	if server.SetupStatus == SetupNotStarted && local.SetupStatus == SetupInProgress {
		return local
	}
	return server
}

// ChooseActiveMode derives which mode a session should operate in. The
// preferred mode is kept when it is still ready; otherwise coach wins over
// client. The ordering is a fixed tie-break and must stay deterministic.
func ChooseActiveMode(preferred *AppMode, capabilities AccountCapabilities) *AppMode {
	if preferred != nil && capabilities.Mode(*preferred).Ready() {
		mode := *preferred
		return &mode
	}
	if capabilities.Coach.Ready() {
		mode := ModeCoach
		return &mode
	}
	if capabilities.Client.Ready() {
		mode := ModeClient
		return &mode
	}
	return nil
}

func sameMode(a, b *AppMode) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
