package termio

import "testing"

func TestParseBaud_Supported(t *testing.T) {
	cases := map[int]Baud{9600: B9600, 19200: B19200, 115200: B115200}
	for n, want := range cases {
		got, err := ParseBaud(n)
		if err != nil {
			t.Fatalf("ParseBaud(%d): %v", n, err)
		}
		if got != want {
			t.Fatalf("ParseBaud(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestParseBaud_Unsupported(t *testing.T) {
	for _, n := range []int{0, 300, 57600, 921600} {
		if _, err := ParseBaud(n); err == nil {
			t.Fatalf("ParseBaud(%d): expected error", n)
		}
	}
}
