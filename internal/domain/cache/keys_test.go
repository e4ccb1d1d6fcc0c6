package cache

import "testing"

func TestEmbeddingKey_NormalizesText(t *testing.T) {
	a := EmbeddingKey("  How DO I   restart a pod? ", "text-embedding-3-small", "query")
	b := EmbeddingKey("how do i restart a pod?", "text-embedding-3-small", "query")
	if a != b {
		t.Error("case and whitespace must not change the key")
	}
}

func TestEmbeddingKey_InstructionIsPartOfIdentity(t *testing.T) {
	query := EmbeddingKey("restart a pod", "m", "query")
	passage := EmbeddingKey("restart a pod", "m", "passage")
	if query == passage {
		t.Error("different instructions must produce different keys")
	}
}

func TestEmbeddingKey_ModelIsPartOfIdentity(t *testing.T) {
	a := EmbeddingKey("restart a pod", "model-a", "")
	b := EmbeddingKey("restart a pod", "model-b", "")
	if a == b {
		t.Error("different models must produce different keys")
	}
}

func TestRetrievalKey_BaseOrderIrrelevant(t *testing.T) {
	a := RetrievalKey([]string{"kb", "runbooks"}, "q", 10, "", 0.5, 60)
	b := RetrievalKey([]string{"runbooks", "kb"}, "q", 10, "", 0.5, 60)
	if a != b {
		t.Error("base order must not change the key")
	}
}

func TestRetrievalKey_ParamsChangeKey(t *testing.T) {
	base := RetrievalKey([]string{"kb"}, "q", 10, "", 0.5, 60)

	variants := map[string]string{
		"top_k":  RetrievalKey([]string{"kb"}, "q", 20, "", 0.5, 60),
		"filter": RetrievalKey([]string{"kb"}, "q", 10, "must(language=go)", 0.5, 60),
		"alpha":  RetrievalKey([]string{"kb"}, "q", 10, "", 0.7, 60),
		"rrf_k":  RetrievalKey([]string{"kb"}, "q", 10, "", 0.5, 10),
		"bases":  RetrievalKey([]string{"kb", "runbooks"}, "q", 10, "", 0.5, 60),
	}
	for name, key := range variants {
		if key == base {
			t.Errorf("changing %s must change the key", name)
		}
	}
}

func TestAnswerKey_NormalizesQuery(t *testing.T) {
	a := AnswerKey([]string{"kb"}, "Why   does DNS fail?")
	b := AnswerKey([]string{"kb"}, "why does dns fail?")
	if a != b {
		t.Error("case and whitespace must not change the key")
	}
}
