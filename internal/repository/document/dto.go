package document

import (
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/domain"
	domdoc "github.com/kailas-cloud/ragdex/internal/domain/document"
)

// buildJSONDoc flattens a domain Document into the stored JSON shape:
// system fields (__content, __vector, __version) plus tags and numerics
// at the top level, so FT indexes them by plain $.{name} paths.
func buildJSONDoc(doc *domdoc.Document) map[string]any {
	m := make(map[string]any, 3+len(doc.Tags())+len(doc.Numerics()))
	m["__content"] = doc.Content()
	m["__version"] = doc.Version()
	if doc.Vector() != nil {
		m["__vector"] = doc.Vector()
	}
	for k, v := range doc.Tags() {
		m[k] = v
	}
	for k, v := range doc.Numerics() {
		m[k] = v
	}
	return m
}

// parseJSONGetResult parses a JSON.GET $ response ([{...}]) into a Document.
func parseJSONGetResult(id string, raw []byte) (domdoc.Document, error) {
	var docs []map[string]any
	if err := json.Unmarshal(raw, &docs); err != nil {
		return domdoc.Document{}, fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	if len(docs) == 0 {
		return domdoc.Document{}, domain.ErrDocumentNotFound
	}
	return parseDocMap(id, docs[0]), nil
}

// parseDocMap converts the stored JSON map into a domain Document.
// JSON strings become tags, JSON numbers become numerics.
func parseDocMap(id string, m map[string]any) domdoc.Document {
	var content string
	var vector []float32
	version := 0
	tags := make(map[string]string)
	numerics := make(map[string]float64)

	for k, v := range m {
		switch k {
		case "__content":
			if s, ok := v.(string); ok {
				content = s
			}
		case "__vector":
			vector = toFloat32Slice(v)
		case "__version":
			if f, ok := v.(float64); ok {
				version = int(f)
			}
		default:
			switch typed := v.(type) {
			case string:
				tags[k] = typed
			case float64:
				numerics[k] = typed
			}
		}
	}

	return domdoc.Reconstruct(id, content, tags, numerics, vector, version)
}

// versionFromMap reads __version out of a stored JSON map, 0 when absent.
func versionFromMap(m map[string]any) int {
	if f, ok := m["__version"].(float64); ok {
		return int(f)
	}
	return 0
}

// parseVersionResult parses a JSON.GET $.__version response ([n]).
func parseVersionResult(raw []byte) (int, error) {
	var versions []int
	if err := json.Unmarshal(raw, &versions); err != nil {
		return 0, fmt.Errorf("unmarshal version result %q: %w", raw, err)
	}
	if len(versions) == 0 {
		return 0, nil
	}
	return versions[0], nil
}

func toFloat32Slice(v any) []float32 {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(arr))
	for _, e := range arr {
		f, ok := e.(float64)
		if !ok {
			return nil
		}
		out = append(out, float32(f))
	}
	return out
}
