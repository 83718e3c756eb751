package topics

import (
	"net/netip"
	"testing"

	"tgnotify/internal/config"
)

func buildOne(t *testing.T, tc config.TopicConfig) Topic {
	t.Helper()
	r, err := Build(map[string]config.TopicConfig{"ops": tc})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	topic, ok := r.Resolve("ops")
	if !ok {
		t.Fatal("topic ops missing after Build")
	}
	return topic
}

func TestAllowedCIDRContainment(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		allow []string
		addr  string
		want  bool
	}{
		{"v4 inside /8", []string{"10.0.0.0/8"}, "10.1.2.3", true},
		{"v4 outside /8", []string{"10.0.0.0/8"}, "11.0.0.1", false},
		{"v4 /32 exact", []string{"192.168.1.7/32"}, "192.168.1.7", true},
		{"v4 /32 miss", []string{"192.168.1.7/32"}, "192.168.1.8", false},
		{"v4 /0 matches all v4", []string{"0.0.0.0/0"}, "8.8.8.8", true},
		{"v6 inside", []string{"fd00::/8"}, "fd12:3456::1", true},
		{"v6 outside", []string{"fd00::/8"}, "fe80::1", false},
		{"family mismatch v6 addr v4 block", []string{"10.0.0.0/8"}, "fd00::1", false},
		{"family mismatch v4 addr v6 block", []string{"fd00::/8"}, "10.0.0.1", false},
		{"mapped v4 matches v4 block", []string{"10.0.0.0/8"}, "::ffff:10.1.2.3", true},
		{"second block matches", []string{"172.16.0.0/12", "10.0.0.0/8"}, "10.9.9.9", true},
		{"empty allow list denies", nil, "10.0.0.1", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			topic := buildOne(t, config.TopicConfig{AllowList: tt.allow})
			addr := netip.MustParseAddr(tt.addr)
			if got := topic.Allowed(addr); got != tt.want {
				t.Fatalf("Allowed(%s) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestResolveUnknownTopic(t *testing.T) {
	t.Parallel()
	r, err := Build(map[string]config.TopicConfig{
		"ops": {Recipients: []string{"111"}, AllowList: []string{"0.0.0.0/0"}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := r.Resolve("nope"); ok {
		t.Fatal("Resolve should miss unknown topic")
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d", r.Len())
	}
}

func TestBuildRejectsBadCIDR(t *testing.T) {
	t.Parallel()
	_, err := Build(map[string]config.TopicConfig{
		"ops": {AllowList: []string{"10.0.0.0/40"}},
	})
	if err == nil {
		t.Fatal("expected error for invalid CIDR")
	}
}

func TestBuildCopiesRecipients(t *testing.T) {
	t.Parallel()
	src := []string{"111", "222"}
	topic := buildOne(t, config.TopicConfig{Recipients: src})
	src[0] = "mutated"
	if topic.Recipients[0] != "111" {
		t.Fatal("registry must not alias config slices")
	}
}

// An unmasked prefix like 10.1.2.3/8 must behave as its network 10.0.0.0/8.
func TestBuildMasksPrefixes(t *testing.T) {
	t.Parallel()
	topic := buildOne(t, config.TopicConfig{AllowList: []string{"10.1.2.3/8"}})
	if !topic.Allowed(netip.MustParseAddr("10.200.0.1")) {
		t.Fatal("masked /8 should contain 10.200.0.1")
	}
}
