package chroma

import "sort"

// ComposeWhere builds a Chroma `where` clause from equality filters.
//
// Zero filters produce nil (unrestricted query). A single filter is passed
// through directly. Two or more filters must be wrapped in the explicit $and
// operator: Chroma rejects a plain merged object with multiple keys, so the
// two forms are not interchangeable.
func ComposeWhere(filters map[string]any) map[string]any {
	switch len(filters) {
	case 0:
		return nil
	case 1:
		for key, value := range filters {
			return map[string]any{key: value}
		}
		return nil
	default:
		keys := make([]string, 0, len(filters))
		for key := range filters {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		clauses := make([]any, 0, len(keys))
		for _, key := range keys {
			clauses = append(clauses, map[string]any{key: filters[key]})
		}
		return map[string]any{"$and": clauses}
	}
}
