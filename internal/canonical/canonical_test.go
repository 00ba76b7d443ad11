package canonical

import (
	"encoding/json"
	"testing"
)

func TestBytes_SortsObjectKeys(t *testing.T) {
	v := map[string]any{"b": 1, "a": 2, "c": 3}
	got, err := Bytes(v)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	want := `{"a":2,"b":1,"c":3}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestBytes_NestedSorting(t *testing.T) {
	v := map[string]any{
		"z": map[string]any{"y": 1, "x": 2},
		"a": 1,
	}
	got, err := Bytes(v)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	want := `{"a":1,"z":{"x":2,"y":1}}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestBytes_PreservesArrayOrder(t *testing.T) {
	v := map[string]any{"arr": []any{3, 1, 2}}
	got, err := Bytes(v)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	want := `{"arr":[3,1,2]}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestBytes_NullPreserved(t *testing.T) {
	v := map[string]any{"a": nil}
	got, err := Bytes(v)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if string(got) != `{"a":null}` {
		t.Errorf("got %s", got)
	}
}

func TestBytes_RejectsNonFiniteFloat(t *testing.T) {
	raw := []byte(`{"a": 1e400}`) // overflows to +Inf when parsed as float64
	if _, err := BytesFromJSON(raw); err == nil {
		t.Error("expected error for non-finite number, got nil")
	}
}

func TestBytes_IntegerMinimalForm(t *testing.T) {
	raw := []byte(`{"a": 007}`)
	if _, err := BytesFromJSON(raw); err == nil {
		t.Error("expected error for malformed JSON with leading zero")
	}
}

func TestBytes_Idempotent(t *testing.T) {
	v := map[string]any{"b": []any{1, 2.5, "x"}, "a": true, "n": nil}
	first, err := Bytes(v)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	var roundTripped any
	if err := json.Unmarshal(first, &roundTripped); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	second, err := Bytes(roundTripped)
	if err != nil {
		t.Fatalf("Bytes (2nd pass): %v", err)
	}
	if string(first) != string(second) {
		t.Errorf("canonical(parse(canonical(v))) != canonical(v): %s != %s", first, second)
	}
}

func TestBytes_DoesNotHTMLEscapeStrings(t *testing.T) {
	v := map[string]any{"a": "a<b&c>d", "sep": "x\u2028y\u2029z"}
	got, err := Bytes(v)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	want := "{\"a\":\"a<b&c>d\",\"sep\":\"x\u2028y\u2029z\"}"
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestHash_Deterministic(t *testing.T) {
	v1 := map[string]any{"b": 1, "a": 2}
	v2 := map[string]any{"a": 2, "b": 1}
	h1, err := Hash(v1)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := Hash(v2)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("semantically equal values hashed differently: %s != %s", h1, h2)
	}
}
