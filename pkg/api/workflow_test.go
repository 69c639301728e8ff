package api

import (
	"reflect"
	"testing"
)

func TestCloneData_Deep(t *testing.T) {
	src := map[string]any{
		"cfg":   map[string]any{"rows": 1, "cols": []any{"a", map[string]any{"b": 2}}},
		"rows":  []map[string]any{{"id": 1}},
		"meta":  map[string]string{"k": "v"},
		"names": []string{"x"},
		"n":     3,
	}
	want := map[string]any{
		"cfg":   map[string]any{"rows": 1, "cols": []any{"a", map[string]any{"b": 2}}},
		"rows":  []map[string]any{{"id": 1}},
		"meta":  map[string]string{"k": "v"},
		"names": []string{"x"},
		"n":     3,
	}

	out := CloneData(src)

	cfg := src["cfg"].(map[string]any)
	cfg["rows"] = 9
	cfg["cols"].([]any)[1].(map[string]any)["b"] = 9
	src["rows"].([]map[string]any)[0]["id"] = 9
	src["meta"].(map[string]string)["k"] = "changed"
	src["names"].([]string)[0] = "changed"

	if !reflect.DeepEqual(out, want) {
		t.Fatalf("clone aliases its source: got %v", out)
	}
}

func TestCloneData_Nil(t *testing.T) {
	out := CloneData(nil)
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil map, got %#v", out)
	}

	var nested map[string]any
	if got := CloneValue(nested); got.(map[string]any) != nil {
		t.Fatalf("nil nested map should stay nil, got %#v", got)
	}
}
