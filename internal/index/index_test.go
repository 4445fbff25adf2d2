package index

import "testing"

func TestParse_WellFormed(t *testing.T) {
	idx := Parse([]byte("1 telemetry\n2 gps\n"))
	if len(idx) != 2 || idx[1] != "telemetry" || idx[2] != "gps" {
		t.Fatalf("got %v", idx)
	}
}

func TestParse_SkipsInvalidRecords(t *testing.T) {
	payload := []byte("not-a-number name\n" +
		"999 too-big\n" +
		"3 \n" +
		"5 valid\n" +
		"\n")
	idx := Parse(payload)
	if len(idx) != 1 || idx[5] != "valid" {
		t.Fatalf("expected only the valid record to survive, got %v", idx)
	}
}

func TestParse_NeverErrors(t *testing.T) {
	inputs := [][]byte{
		nil,
		{},
		[]byte("\x00\x01garbage"),
		[]byte("256 overflow\n"),
		[]byte("-1 negative\n"),
	}
	for _, in := range inputs {
		_ = Parse(in) // must not panic
	}
}

func TestEncodeThenParse_RoundTrips(t *testing.T) {
	want := Index{1: "a", 2: "b", 200: "c"}
	got := Parse(Encode(want))
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("key %d: got %q, want %q", k, got[k], v)
		}
	}
}

func TestEncodeRequest(t *testing.T) {
	if string(EncodeRequest()) != "INDEX_REQUEST" {
		t.Fatalf("got %q", EncodeRequest())
	}
}
