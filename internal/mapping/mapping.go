// Package mapping turns provider-shaped records into canonical records using declarative
// canonical-field to provider-field maps.
package mapping

import (
	"maps"
	"strconv"
	"strings"
)

type Record = map[string]any

// Apply builds the canonical record for one source record. Every key of fieldMap is present in the
// result; a field whose source path is empty or does not resolve is set to nil.
//
// Source paths are dot-delimited ("customer.name"). A numeric segment indexes into an array
// ("addresses.0.city").
func Apply(record Record, fieldMap map[string]string) Record {
	out := make(Record, len(fieldMap))
	for canonical, source := range fieldMap {
		out[canonical] = Lookup(record, source)
	}
	return out
}

// TransformMany applies fieldMap to each record and merges extra into every result. Extra keys are
// written last and replace a mapped value with the same name.
func TransformMany(records []Record, fieldMap map[string]string, extra map[string]any) []Record {
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		mapped := Apply(rec, fieldMap)
		maps.Copy(mapped, extra)
		out = append(out, mapped)
	}
	return out
}

// Lookup resolves a dot-delimited path in record, returning nil when any segment is missing.
func Lookup(record Record, path string) any {
	path = strings.TrimSpace(path)
	if path == "" || record == nil {
		return nil
	}
	if v, ok := record[path]; ok {
		return v
	}

	var current any = record
	for _, part := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[part]
			if !ok {
				return nil
			}
			current = next
		case []any:
			i, err := strconv.Atoi(part)
			if err != nil || i < 0 || i >= len(v) {
				return nil
			}
			current = v[i]
		default:
			return nil
		}
	}
	return current
}
