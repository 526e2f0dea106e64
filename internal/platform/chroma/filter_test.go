package chroma

import (
	"reflect"
	"testing"
)

func TestComposeWhereNoFilters(t *testing.T) {
	if got := ComposeWhere(nil); got != nil {
		t.Fatalf("want nil, got=%v", got)
	}
	if got := ComposeWhere(map[string]any{}); got != nil {
		t.Fatalf("want nil, got=%v", got)
	}
}

func TestComposeWhereSingleFilterPassesThrough(t *testing.T) {
	got := ComposeWhere(map[string]any{"material_id": "mat-1"})
	want := map[string]any{"material_id": "mat-1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want=%v got=%v", want, got)
	}
}

func TestComposeWhereMultipleFiltersUseAnd(t *testing.T) {
	got := ComposeWhere(map[string]any{
		"unit":        "week-2",
		"material_id": "mat-1",
	})

	clauses, ok := got["$and"].([]any)
	if !ok {
		t.Fatalf("$and missing or wrong type: got=%v", got)
	}
	if len(got) != 1 {
		t.Fatalf("top level must contain only $and: got=%v", got)
	}
	// Deterministic clause order, sorted by key.
	want := []any{
		map[string]any{"material_id": "mat-1"},
		map[string]any{"unit": "week-2"},
	}
	if !reflect.DeepEqual(clauses, want) {
		t.Fatalf("clauses: want=%v got=%v", want, clauses)
	}
}

func TestCoerceFilterValue(t *testing.T) {
	if got := CoerceFilterValue(7); got != "7" {
		t.Fatalf("int: want=%q got=%q", "7", got)
	}
	if got := CoerceFilterValue(true); got != "true" {
		t.Fatalf("bool: want=%q got=%q", "true", got)
	}
	if got := CoerceFilterValue("week-1"); got != "week-1" {
		t.Fatalf("string: want=%q got=%q", "week-1", got)
	}
}
