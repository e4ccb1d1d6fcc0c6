package base

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/ragdex/internal/domain/base"
	"github.com/kailas-cloud/ragdex/internal/domain/base/field"
)

// fieldRow is the JSON-serializable representation of a schema field for HSET.
type fieldRow struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// baseToHash converts a domain Base to a map for HSET.
func baseToHash(b base.Base) (map[string]string, error) {
	rows := make([]fieldRow, len(b.Fields()))
	for i, f := range b.Fields() {
		rows[i] = fieldRow{Name: f.Name(), Type: string(f.FieldType())}
	}
	fieldsJSON, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	return map[string]string{
		"name":          b.Name(),
		"description":   b.Description(),
		"content_class": string(b.ContentClass()),
		"fields_json":   string(fieldsJSON),
		"vector_dim":    strconv.Itoa(b.VectorDim()),
		"created_at":    strconv.FormatInt(b.CreatedAt(), 10),
		"revision":      strconv.Itoa(b.Revision()),
	}, nil
}

// baseFromHash hydrates a domain Base from an HGETALL result map.
func baseFromHash(m map[string]string, defaultVectorDim int) (base.Base, error) {
	name := m["name"]
	createdAtStr := m["created_at"]
	fieldsJSON := m["fields_json"]

	createdAt, err := strconv.ParseInt(createdAtStr, 10, 64)
	if err != nil {
		return base.Base{}, fmt.Errorf("invalid created_at: %w", err)
	}

	var rows []fieldRow
	if fieldsJSON != "" {
		if err := json.Unmarshal([]byte(fieldsJSON), &rows); err != nil {
			return base.Base{}, fmt.Errorf("unmarshal fields: %w", err)
		}
	}

	fields := make([]field.Field, len(rows))
	for i, r := range rows {
		fields[i] = field.Reconstruct(r.Name, field.Type(r.Type))
	}

	vectorDim := defaultVectorDim
	if dimStr, ok := m["vector_dim"]; ok && dimStr != "" {
		if parsed, err := strconv.Atoi(dimStr); err == nil {
			vectorDim = parsed
		}
	}

	revision := 1
	if revStr, ok := m["revision"]; ok && revStr != "" {
		if parsed, err := strconv.Atoi(revStr); err == nil {
			revision = parsed
		}
	}

	class := base.ContentClass(m["content_class"])
	return base.Reconstruct(name, m["description"], class, fields, vectorDim, createdAt, revision), nil
}
