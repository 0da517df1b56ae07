package pagestore

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The store calls them on hot paths, some under a tracker shard lock.
type Hooks interface {
	// Connection state reported by the provider (observability only).
	ConnectionEstablished(addr string, reconnects int)
	ConnectionLost(addr string, err error)

	// The store dropped local or remote state on read.
	// reason ∈ {"miss", "corrupt", "key_mismatch", "decode"}
	SelfHeal(storageKey, reason string)

	// A provider call failed and was degraded to a miss/no-op.
	// op ∈ {"get", "set", "del"}
	RemoteFailure(op, storageKey string, err error)

	// Building a session's key set failed and a fresh set was installed instead.
	TrackerFallback(sessionID string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) ConnectionEstablished(string, int)   {}
func (NopHooks) ConnectionLost(string, error)        {}
func (NopHooks) SelfHeal(string, string)             {}
func (NopHooks) RemoteFailure(string, string, error) {}
func (NopHooks) TrackerFallback(string, error)       {}
