package trace

import (
	"testing"
)

func TestSchemes_IdentifierLengths(t *testing.T) {
	single := SingleScheme()
	if got := len(single.TraceIDs.Generate().Bytes()); got != 8 {
		t.Errorf("single trace id length = %d, want 8", got)
	}
	if got := len(single.SpanIDs.Generate().Bytes()); got != 8 {
		t.Errorf("single span id length = %d, want 8", got)
	}

	double := DoubleScheme()
	if got := len(double.TraceIDs.Generate().Bytes()); got != 16 {
		t.Errorf("double trace id length = %d, want 16", got)
	}
	if got := len(double.SpanIDs.Generate().Bytes()); got != 8 {
		t.Errorf("double span id length = %d, want 8", got)
	}
}

func TestFactory_GeneratesDistinctIdentifiers(t *testing.T) {
	factory := SingleScheme().SpanIDs
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := factory.Generate()
		if id.IsEmpty() {
			t.Fatal("generated identifier is empty")
		}
		if seen[id.String()] {
			t.Fatalf("identifier %s generated twice", id)
		}
		seen[id.String()] = true
	}
}

func TestFactory_FromHexRoundTrip(t *testing.T) {
	factory := DoubleScheme().TraceIDs
	id := factory.Generate()

	back, err := factory.FromHex(id.String())
	if err != nil {
		t.Fatalf("FromHex failed: %v", err)
	}
	if !back.Equal(id) {
		t.Errorf("round trip = %s, want %s", back, id)
	}

	if _, err := factory.FromHex("not-hex"); err == nil {
		t.Error("FromHex should reject non-hex input")
	}
	if _, err := factory.FromHex("abcd"); err == nil {
		t.Error("FromHex should reject identifiers of the wrong length")
	}
}

func TestParseIdentifier(t *testing.T) {
	id, err := ParseIdentifier("0011223344556677")
	if err != nil {
		t.Fatalf("ParseIdentifier failed: %v", err)
	}
	if id.String() != "0011223344556677" {
		t.Errorf("String = %q", id.String())
	}
	if len(id.Bytes()) != 8 {
		t.Errorf("Bytes length = %d, want 8", len(id.Bytes()))
	}

	if _, err := ParseIdentifier("zz"); err == nil {
		t.Error("ParseIdentifier should reject non-hex input")
	}
}

func TestSchemeFor(t *testing.T) {
	if _, err := SchemeFor("single"); err != nil {
		t.Errorf("single scheme unavailable: %v", err)
	}
	if _, err := SchemeFor("double"); err != nil {
		t.Errorf("double scheme unavailable: %v", err)
	}

	scheme, err := SchemeFor("unheard-of")
	if err == nil {
		t.Error("unknown scheme should return an error")
	}
	if scheme.TraceIDs == nil || scheme.TraceIDs.Length() != 8 {
		t.Error("unknown scheme must fall back to the single scheme")
	}
}

func TestIdentifier_Empty(t *testing.T) {
	var id Identifier
	if !id.IsEmpty() {
		t.Error("zero identifier should be empty")
	}
	if id.String() != "" {
		t.Errorf("empty String = %q", id.String())
	}
	other, _ := ParseIdentifier("0102030405060708")
	if id.Equal(other) {
		t.Error("empty identifier must not equal a real one")
	}
}
