package mdv2

import (
	"strings"
	"testing"
)

func TestEscReservedSet(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "disk full", want: "disk full"},
		{name: "dot", in: "host.local", want: "host\\.local"},
		{name: "bold markers", in: "*alert*", want: "\\*alert\\*"},
		{name: "all reserved", in: "_*[]()~`>#+-=|{}.!", want: "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
		{name: "non-ascii kept", in: "диск 90% → full!", want: "диск 90% → full\\!"},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Esc(tt.in); string(got) != tt.want {
				t.Fatalf("Esc(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// Removing the escape character must reconstruct the input exactly.
func TestEscRoundTrip(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"alice", "a_b*c", "x(y)[z]", "1+1=2", "a\\b", "#!~|{}", "plain text, no marks",
	}
	for _, in := range inputs {
		out := string(Esc(in))
		if len(out) < len(in) {
			t.Fatalf("Esc(%q) shorter than input: %q", in, out)
		}
		var b strings.Builder
		for i := 0; i < len(out); i++ {
			if out[i] == '\\' && i+1 < len(out) && strings.IndexByte(reserved, out[i+1]) >= 0 {
				continue
			}
			b.WriteByte(out[i])
		}
		if b.String() != in {
			t.Fatalf("unescape(Esc(%q)) = %q", in, b.String())
		}
	}
}

func TestEscNotIdempotent(t *testing.T) {
	t.Parallel()
	once := string(Esc("a.b"))
	twice := string(Esc(once))
	if once == twice {
		t.Fatalf("double escape should differ: %q", once)
	}
	if twice != "a\\\\\\.b" {
		t.Fatalf("Esc(Esc(\"a.b\")) = %q", twice)
	}
}

func TestBold(t *testing.T) {
	t.Parallel()
	if got := Bold("alice@ops"); string(got) != "*alice@ops*" {
		t.Fatalf("Bold = %q", got)
	}
	if got := Bold("a.b"); string(got) != "*a\\.b*" {
		t.Fatalf("Bold = %q", got)
	}
}
