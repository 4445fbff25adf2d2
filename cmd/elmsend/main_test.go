package main

import "testing"

func TestParseByteValue_Accepts(t *testing.T) {
	cases := map[string]uint64{
		"0":    0,
		"255":  255,
		"0xff": 255,
		"0xFF": 255,
		"010":  8, // octal, matching strconv.ParseUint base 0
	}
	for in, want := range cases {
		got, err := parseByteValue(in)
		if err != nil {
			t.Fatalf("parseByteValue(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("parseByteValue(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseByteValue_RejectsOverflow(t *testing.T) {
	for _, in := range []string{"256", "0x100", "1000"} {
		if _, err := parseByteValue(in); err == nil {
			t.Fatalf("parseByteValue(%q): expected error", in)
		}
	}
}

func TestParseByteValue_RejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "xyz", "-1"} {
		if _, err := parseByteValue(in); err == nil {
			t.Fatalf("parseByteValue(%q): expected error", in)
		}
	}
}
