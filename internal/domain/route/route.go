package route

// Decision is the routing outcome for one query. Transient, logged but never
// persisted.
type Decision struct {
	needsRetrieval bool
	targetBases    []string
	reasoning      string
}

// New creates a Decision. Empty targetBases means every known base.
func New(needsRetrieval bool, targetBases []string, reasoning string) Decision {
	return Decision{needsRetrieval: needsRetrieval, targetBases: targetBases, reasoning: reasoning}
}

// SafeDefault is the decision applied when classification fails or comes back
// below the confidence threshold: retrieve, over every base. Skipping
// retrieval on a wrong guess produces ungrounded answers; retrieving
// needlessly only costs latency.
func SafeDefault(reasoning string) Decision {
	return Decision{needsRetrieval: true, reasoning: reasoning}
}

// NeedsRetrieval reports whether the pipeline should retrieve at all.
func (d Decision) NeedsRetrieval() bool { return d.needsRetrieval }

// TargetBases returns the knowledge bases to query. Empty means all.
func (d Decision) TargetBases() []string { return d.targetBases }

// Reasoning returns the classifier's explanation, for logging.
func (d Decision) Reasoning() string { return d.reasoning }
