package types

import (
	"encoding/json"
	"testing"
)

func TestCoerceAndParseRoundTrip(t *testing.T) {
	values := []MetaValue{
		MetaStr("week-1"),
		MetaNum(42),
		MetaNum(0.5),
		MetaFlag(true),
		MetaFlag(false),
	}
	for _, v := range values {
		got := ParseMeta(v.Coerce())
		if got != v {
			t.Fatalf("round trip: want=%+v got=%+v", v, got)
		}
	}
}

func TestParseMetaPrefersBoolThenNumber(t *testing.T) {
	if v := ParseMeta("true"); v.Kind != MetaBool || !v.Bool {
		t.Fatalf("true: got=%+v", v)
	}
	if v := ParseMeta("3.25"); v.Kind != MetaNumber || v.Num != 3.25 {
		t.Fatalf("3.25: got=%+v", v)
	}
	if v := ParseMeta("3.25.1"); v.Kind != MetaString {
		t.Fatalf("3.25.1: got=%+v", v)
	}
	// ParseBool accepts several spellings; only the canonical pair re-types.
	if v := ParseMeta("TRUE"); v.Kind != MetaString {
		t.Fatalf("TRUE must stay a string: got=%+v", v)
	}
}

func TestMetadataJSONKeepsNaturalTypes(t *testing.T) {
	meta := Metadata{
		"unit":        MetaStr("week-1"),
		"chunk_index": MetaNum(3),
		"pinned":      MetaFlag(true),
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Metadata
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["unit"] != MetaStr("week-1") {
		t.Fatalf("unit: got=%+v", decoded["unit"])
	}
	if decoded["chunk_index"] != MetaNum(3) {
		t.Fatalf("chunk_index: got=%+v", decoded["chunk_index"])
	}
	if decoded["pinned"] != MetaFlag(true) {
		t.Fatalf("pinned: got=%+v", decoded["pinned"])
	}
}

func TestChunkVectorIDFormat(t *testing.T) {
	c := MaterialChunk{ChunkIndex: 7}
	want := c.MaterialID.String() + "_7"
	if got := c.VectorID(); got != want {
		t.Fatalf("vector id: want=%q got=%q", want, got)
	}
}
