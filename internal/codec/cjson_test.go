package codec

import "testing"

func TestCanonicalJSONSortsKeys(t *testing.T) {
	v := map[string]any{
		"zebra": 1,
		"alpha": 2,
		"mid":   "x",
	}
	out, err := CanonicalJSON(v)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"alpha":2,"mid":"x","zebra":1}`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

func TestCanonicalJSONDeterministic(t *testing.T) {
	v := map[string]any{
		"b": []any{1, 2, 3},
		"a": map[string]any{"y": 1, "x": 2},
	}
	a, err := CanonicalJSON(v)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	b, err := CanonicalJSON(v)
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("encoding not deterministic: %s != %s", a, b)
	}
}

func TestCanonicalJSONRejectsFloats(t *testing.T) {
	_, err := CanonicalJSON(map[string]any{"x": 1.5})
	if err == nil {
		t.Error("expected error for float value")
	}
}

func TestCanonicalJSONEscapesStrings(t *testing.T) {
	out, err := CanonicalJSON("hello \"world\"\n")
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `"hello \"world\"\n"`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}

type customDoc struct {
	raw []byte
}

func (c customDoc) MarshalCanonical() ([]byte, error) {
	return c.raw, nil
}

func TestCanonicalJSONMarshaler(t *testing.T) {
	out, err := CanonicalJSON(customDoc{raw: []byte(`{"custom":true}`)})
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	if string(out) != `{"custom":true}` {
		t.Errorf("got %s", out)
	}
}
