package base

import (
	"fmt"

	"github.com/kailas-cloud/ragdex/internal/db"
	"github.com/kailas-cloud/ragdex/internal/domain/base/field"
)

// buildIndex creates an IndexDefinition over the base's JSON documents.
// Schema fields index as $.{name} AS {name}. System fields cover the
// document content ($.__content TEXT, only when the backend supports BM25),
// the document version ($.__version NUMERIC, read by cache invalidation)
// and the embedding vector ($.__vector, HNSW/COSINE).
func buildIndex(
	name string, fields []field.Field, vectorDim int,
	textSearchEnabled bool, hnsw HNSWConfig,
) (*db.IndexDefinition, error) {
	b := db.NewIndex(indexName(name)).
		OnJSON().
		Prefix(basePrefix(name))

	for _, f := range fields {
		switch f.FieldType() {
		case field.Tag:
			b.Tag("$." + f.Name()).As(f.Name())
		case field.Numeric:
			b.Numeric("$." + f.Name()).As(f.Name())
		default:
			return nil, fmt.Errorf("unknown field type: %s", f.FieldType())
		}
	}

	// TEXT field for BM25 keyword search (backend must support it)
	if textSearchEnabled {
		b.Text("$.__content").As("__content")
	}

	// Version indexes so invalidation sweeps can filter without JSON.GET per key
	b.Numeric("$.__version").As("__version")

	b.VectorHNSW("$.__vector", vectorDim, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).As("vector")

	return b.Build()
}
