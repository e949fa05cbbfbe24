package validate

import "sync"

// Evaluator keys. The Java source tags each implementation class with a
// @RecordEvaluatorKey("...") annotation; since the set of evaluators this
// core ships is closed (spec.md §9), a compile-time constant plus a
// registration table fully replaces the runtime annotation lookup.
const (
	UniquenessKey   = "uniquenessEvaluator"
	ReferentialKey  = "referentialIntegrityEvaluator"
)

var (
	registryMu sync.RWMutex
	registry   = map[string]func() string{}
)

// registerEvaluatorKey records that key is a known evaluator kind. Called
// from this file's init() once per evaluator key, mirroring the source's
// annotation scan without needing reflection at runtime.
func registerEvaluatorKey(key string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[key] = func() string { return key }
}

// KnownEvaluatorKey reports whether key names a registered evaluator kind.
// Drivers use this to validate configuration before construction.
func KnownEvaluatorKey(key string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[key]
	return ok
}

func init() {
	registerEvaluatorKey(UniquenessKey)
	registerEvaluatorKey(ReferentialKey)
}
