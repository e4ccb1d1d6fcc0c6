package route

import (
	"context"
	"strings"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// smallTalkPrefixes match conversational openers carrying no information
// need. Checked against the normalized query with trailing punctuation
// stripped.
var smallTalkPrefixes = []string{
	"hi", "hello", "hey", "yo",
	"good morning", "good afternoon", "good evening",
	"thanks", "thank you", "thx", "ty",
	"how are you", "what's up", "whats up",
	"bye", "goodbye", "see you",
	"ok", "okay", "cool", "great", "nice",
}

// RuleClassifier is a deterministic Classifier with no external calls.
// Greetings, thanks and chit-chat skip retrieval; everything else retrieves
// over all suggested bases. Used in tests and in deployments without a chat
// provider.
type RuleClassifier struct{}

// NewRuleClassifier creates the rule-based classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// Classify implements Classifier without calling out anywhere, so it never
// returns an error.
func (c *RuleClassifier) Classify(_ context.Context, query string, bases []string) (domain.Classification, error) {
	if isSmallTalk(query) {
		return domain.Classification{
			NeedsRetrieval: false,
			Confidence:     0.9,
			Reasoning:      "greeting or small talk",
		}, nil
	}

	return domain.Classification{
		NeedsRetrieval: true,
		TargetBases:    bases,
		Confidence:     0.6,
		Reasoning:      "no small-talk pattern matched",
	}, nil
}

// isSmallTalk reports whether the query is a pure conversational opener.
// A prefix match alone is not enough: "hi, why is the pod crashlooping"
// still needs retrieval, so anything beyond a few words past the prefix
// disqualifies the match.
func isSmallTalk(query string) bool {
	q := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	q = strings.TrimRight(q, "!.,?")
	if q == "" {
		return false
	}

	for _, prefix := range smallTalkPrefixes {
		if q == prefix {
			return true
		}
		rest, ok := strings.CutPrefix(q, prefix+" ")
		if ok && len(strings.Fields(rest)) <= 2 && !containsQuestionWord(rest) {
			return true
		}
	}
	return false
}

func containsQuestionWord(s string) bool {
	for _, w := range strings.Fields(s) {
		switch w {
		case "what", "how", "why", "when", "where", "who", "which":
			return true
		}
	}
	return false
}
