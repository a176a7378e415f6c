package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	tests := []struct{ in, want string }{
		{"ann@example.com", "a***@example.com"},
		{"sent to bob.smith@corp.co.uk ok", "sent to b***@corp.co.uk ok"},
		{"no address here", "no address here"},
		{"x@y.io and z@w.dev", "x***@y.io and z***@w.dev"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
