package ask

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain/answer"
	"github.com/kailas-cloud/ragdex/internal/domain/candidate"
	"github.com/kailas-cloud/ragdex/internal/domain/fusion"
)

// answerPayload is the answer-cache JSON shape. Cached, partial and skipped
// states are never stored: partial answers are not cached, and the hit
// itself sets the cached flag.
type answerPayload struct {
	Text           string           `json:"text"`
	Passages       []passagePayload `json:"passages,omitempty"`
	Reranked       bool             `json:"reranked"`
	DegradedStages []string         `json:"degraded_stages,omitempty"`
	SourceVersions map[string]int   `json:"source_versions,omitempty"`
}

type passagePayload struct {
	DocID      string             `json:"doc_id"`
	Content    string             `json:"content"`
	Tags       map[string]string  `json:"tags,omitempty"`
	Numerics   map[string]float64 `json:"numerics,omitempty"`
	CrossScore float64            `json:"cross_score"`
	Position   int                `json:"position"`
}

func encodeAnswer(a answer.Answer) ([]byte, error) {
	payload := answerPayload{
		Text:           a.Text(),
		Reranked:       a.Reranked(),
		DegradedStages: a.DegradedStages(),
		SourceVersions: a.SourceVersions(),
	}
	for _, p := range a.Passages() {
		payload.Passages = append(payload.Passages, passagePayload{
			DocID:      p.DocID(),
			Content:    p.Content(),
			Tags:       p.Tags(),
			Numerics:   p.Numerics(),
			CrossScore: p.CrossScore(),
			Position:   p.Position(),
		})
	}
	return json.Marshal(payload)
}

func decodeAnswer(data []byte) (answer.Answer, error) {
	var payload answerPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return answer.Answer{}, fmt.Errorf("decode cached answer: %w", err)
	}

	passages := make([]answer.Passage, 0, len(payload.Passages))
	for _, p := range payload.Passages {
		passage, err := answer.NewPassage(p.DocID, p.Content, p.Tags, p.Numerics, p.CrossScore, p.Position)
		if err != nil {
			return answer.Answer{}, fmt.Errorf("decode cached passage: %w", err)
		}
		passages = append(passages, passage)
	}

	return answer.Reconstruct(
		payload.Text, passages, payload.Reranked, false, false,
		payload.DegradedStages, nil, payload.SourceVersions,
	), nil
}

// fusedPayload is the retrieval-cache JSON shape for one fused candidate.
type fusedPayload struct {
	DocID    string             `json:"doc_id"`
	Score    float64            `json:"score"`
	Ranks    map[string]int     `json:"ranks,omitempty"`
	Content  string             `json:"content,omitempty"`
	Version  int                `json:"version"`
	Tags     map[string]string  `json:"tags,omitempty"`
	Numerics map[string]float64 `json:"numerics,omitempty"`
}

func encodeFused(fused []fusion.Fused) ([]byte, error) {
	payload := make([]fusedPayload, 0, len(fused))
	for _, f := range fused {
		fp := fusedPayload{
			DocID:    f.DocID(),
			Score:    f.Score(),
			Content:  f.Content(),
			Version:  f.Version(),
			Tags:     f.Tags(),
			Numerics: f.Numerics(),
		}
		if ranks := f.Ranks(); len(ranks) > 0 {
			fp.Ranks = make(map[string]int, len(ranks))
			for src, r := range ranks {
				fp.Ranks[string(src)] = r
			}
		}
		payload = append(payload, fp)
	}
	return json.Marshal(payload)
}

func decodeFused(data []byte) ([]fusion.Fused, error) {
	var payload []fusedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode cached retrieval: %w", err)
	}

	fused := make([]fusion.Fused, 0, len(payload))
	for _, fp := range payload {
		if fp.DocID == "" {
			return nil, fmt.Errorf("decode cached retrieval: empty doc ID")
		}
		var ranks map[candidate.Source]int
		if len(fp.Ranks) > 0 {
			ranks = make(map[candidate.Source]int, len(fp.Ranks))
			for src, r := range fp.Ranks {
				ranks[candidate.Source(src)] = r
			}
		}
		fused = append(fused, fusion.Reconstruct(
			fp.DocID, fp.Score, ranks, fp.Content, fp.Version, fp.Tags, fp.Numerics))
	}
	return fused, nil
}
