// Package route decides, per query, whether the pipeline retrieves at all and
// over which knowledge bases. A wrong "skip retrieval" produces an ungrounded
// answer, so every failure path degrades toward retrieval.
package route

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	droute "github.com/kailas-cloud/ragdex/internal/domain/route"
	"github.com/kailas-cloud/ragdex/internal/metrics"
)

// DefaultConfidenceThreshold is the minimum classifier confidence accepted
// before the safe default takes over.
const DefaultConfidenceThreshold = 0.5

// Service wraps a Classifier with the confidence threshold and the
// retrieve-everything fallback.
type Service struct {
	classifier Classifier
	threshold  float64
	logger     *zap.Logger
}

// New creates a router service. A non-positive threshold falls back to
// DefaultConfidenceThreshold.
func New(classifier Classifier, threshold float64, logger *zap.Logger) *Service {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	return &Service{classifier: classifier, threshold: threshold, logger: logger}
}

// Route classifies the query over the known bases. The boolean reports
// degradation: true means the classifier failed or was not confident enough
// and the safe default (retrieve over every known base) was applied. Target
// bases the classifier invented are dropped; if none survive the decision
// falls back to all known bases.
func (s *Service) Route(ctx context.Context, queryText string, knownBases []string) (droute.Decision, bool) {
	cls, err := s.classifier.Classify(ctx, queryText, knownBases)
	if err != nil {
		s.logger.Warn("Route classification failed, defaulting to retrieval", zap.Error(err))
		metrics.RouterDecisionsTotal.WithLabelValues("fallback").Inc()
		return droute.SafeDefault("classifier unavailable, defaulting to retrieval"), true
	}

	if cls.Confidence < s.threshold {
		s.logger.Debug("Route confidence below threshold, defaulting to retrieval",
			zap.Float64("confidence", cls.Confidence),
			zap.Float64("threshold", s.threshold),
		)
		metrics.RouterDecisionsTotal.WithLabelValues("fallback").Inc()
		reason := fmt.Sprintf("low confidence (%.2f), defaulting to retrieval", cls.Confidence)
		return droute.SafeDefault(reason), true
	}

	if !cls.NeedsRetrieval {
		metrics.RouterDecisionsTotal.WithLabelValues("direct").Inc()
		s.logger.Debug("Route decided direct generation",
			zap.Float64("confidence", cls.Confidence),
			zap.String("reasoning", cls.Reasoning),
		)
		return droute.New(false, nil, cls.Reasoning), false
	}

	targets := s.filterKnown(cls.TargetBases, knownBases)
	metrics.RouterDecisionsTotal.WithLabelValues("retrieve").Inc()
	return droute.New(true, targets, cls.Reasoning), false
}

// filterKnown drops base names absent from the registry. An empty result
// means "all known bases" downstream.
func (s *Service) filterKnown(targets, known []string) []string {
	if len(targets) == 0 {
		return nil
	}

	knownSet := make(map[string]bool, len(known))
	for _, name := range known {
		knownSet[name] = true
	}

	kept := make([]string, 0, len(targets))
	for _, name := range targets {
		if !knownSet[name] {
			s.logger.Warn("Route classifier selected unknown base, dropping",
				zap.String("base", name),
			)
			continue
		}
		kept = append(kept, name)
	}

	if len(kept) == 0 {
		return nil
	}
	return kept
}
