package urn

import "testing"

func TestFromRootDocumentDeterministic(t *testing.T) {
	doc := []byte(`{"payload":{"delegations":[]},"revision":0}`)

	a := FromRootDocument(doc)
	b := FromRootDocument(doc)

	if !a.Equal(b) {
		t.Errorf("same document produced different URNs: %s != %s", a, b)
	}
}

func TestFromRootDocumentDiffersOnContent(t *testing.T) {
	a := FromRootDocument([]byte(`{"a":1}`))
	b := FromRootDocument([]byte(`{"a":2}`))

	if a.Equal(b) {
		t.Error("different documents produced the same URN")
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	u := FromRootDocument([]byte(`{"a":1}`)).WithPath("heads/main")

	s := u.String()
	parsed, err := Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	if !parsed.Equal(u) {
		t.Errorf("round-tripped URN %s != original %s", parsed, u)
	}
	if parsed.Path() != "heads/main" {
		t.Errorf("Path = %q, want %q", parsed.Path(), "heads/main")
	}
}

func TestRootStripsPath(t *testing.T) {
	u := FromRootDocument([]byte(`{"a":1}`)).WithPath("heads/main")
	root := u.Root()

	if root.Path() != "" {
		t.Errorf("Root().Path() = %q, want empty", root.Path())
	}
	if !root.Equal(u.Root()) {
		t.Error("Root() should be idempotent")
	}
}

func TestParseRejectsWrongScheme(t *testing.T) {
	_, err := Parse("urn:other:abc")
	if err == nil {
		t.Error("expected error for wrong scheme")
	}
}

func TestParseRejectsInvalidCid(t *testing.T) {
	_, err := Parse("urn:link:not-a-valid-cid")
	if err == nil {
		t.Error("expected error for invalid cid")
	}
}

func TestIsZero(t *testing.T) {
	var u URN
	if !u.IsZero() {
		t.Error("zero value URN should report IsZero")
	}
	nonZero := FromRootDocument([]byte(`{}`))
	if nonZero.IsZero() {
		t.Error("non-zero URN should not report IsZero")
	}
}

func TestMarshalCanonical(t *testing.T) {
	u := FromRootDocument([]byte(`{"a":1}`))
	out, err := u.MarshalCanonical()
	if err != nil {
		t.Fatalf("MarshalCanonical: %v", err)
	}
	want := `"` + u.String() + `"`
	if string(out) != want {
		t.Errorf("got %s, want %s", out, want)
	}
}
