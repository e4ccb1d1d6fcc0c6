package route

import (
	"context"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// Classifier decides whether a query needs retrieval. The LLM-backed
// implementation lives in transport/openai; RuleClassifier in this package
// covers tests and deployments without a chat provider.
type Classifier interface {
	Classify(ctx context.Context, query string, bases []string) (domain.Classification, error)
}
