// Package topics holds the immutable topic table: who may post where, and
// who receives it.
package topics

import (
	"fmt"
	"net/netip"

	"tgnotify/internal/config"
)

// Topic is one named notification channel.
type Topic struct {
	Name       string
	Recipients []string
	allowList  []netip.Prefix
}

// Allowed reports whether addr falls inside at least one allow-list block.
// Any matching block authorizes; there is no precedence or deny rule.
func (t Topic) Allowed(addr netip.Addr) bool {
	// Normalize 4-in-6 addresses so IPv4 blocks match them.
	addr = addr.Unmap()
	for _, p := range t.allowList {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Registry is a read-only snapshot of the topic table. It is built once per
// config load and shared by reference across all in-flight requests; a
// reload builds a fresh Registry and swaps the pointer.
type Registry struct {
	topics map[string]Topic
}

// Build constructs a Registry from validated topic configuration.
func Build(cfgs map[string]config.TopicConfig) (*Registry, error) {
	m := make(map[string]Topic, len(cfgs))
	for name, tc := range cfgs {
		t := Topic{
			Name:       name,
			Recipients: append([]string(nil), tc.Recipients...),
			allowList:  make([]netip.Prefix, 0, len(tc.AllowList)),
		}
		for _, cidr := range tc.AllowList {
			p, err := netip.ParsePrefix(cidr)
			if err != nil {
				return nil, fmt.Errorf("topic %q: invalid CIDR %q: %w", name, cidr, err)
			}
			t.allowList = append(t.allowList, p.Masked())
		}
		m[name] = t
	}
	return &Registry{topics: m}, nil
}

// Resolve looks up a topic by name.
func (r *Registry) Resolve(name string) (Topic, bool) {
	t, ok := r.topics[name]
	return t, ok
}

// Len reports the number of configured topics.
func (r *Registry) Len() int { return len(r.topics) }
