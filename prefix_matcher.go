package ipgate

import (
	"encoding/binary"
	"net/netip"
)

// prefixMatcher answers range membership for allowlist entries and trusted
// proxy ranges. It is built once and only read afterwards.
//
// Every prefix lives in a single 128-bit trie keyed by its IPv6 form: IPv4
// prefixes are stored under ::ffff:0:0/96. An IPv4 address and its
// IPv4-mapped form therefore have the same key, and IPv6 ranges that cover
// the mapped block (::/0, ::/80, ...) contain IPv4 addresses as well.
type prefixMatcher struct {
	root *prefixTrieNode
}

type prefixTrieNode struct {
	children [2]*prefixTrieNode
	terminal bool
}

// addrKey is a 128-bit address split into big-endian halves.
type addrKey struct {
	hi, lo uint64
}

func keyOf(addr netip.Addr) addrKey {
	b := addr.As16()
	return addrKey{
		hi: binary.BigEndian.Uint64(b[:8]),
		lo: binary.BigEndian.Uint64(b[8:]),
	}
}

func (k addrKey) bit(i int) int {
	if i < 64 {
		return int(k.hi >> (63 - i) & 1)
	}
	return int(k.lo >> (127 - i) & 1)
}

// keyBits returns the prefix length of p in the 128-bit key space.
func keyBits(p netip.Prefix) int {
	if p.Addr().Is4() {
		return 96 + p.Bits()
	}
	return p.Bits()
}

func buildPrefixMatcher(prefixes []netip.Prefix) prefixMatcher {
	var m prefixMatcher
	for _, prefix := range prefixes {
		if !prefix.IsValid() {
			continue
		}
		if m.root == nil {
			m.root = &prefixTrieNode{}
		}
		m.insert(keyOf(prefix.Addr()), keyBits(prefix))
	}
	return m
}

// insert marks the first bits of key as a covered range. Paths below an
// already covered node are not extended.
func (m prefixMatcher) insert(key addrKey, bits int) {
	node := m.root
	for i := 0; i < bits; i++ {
		if node.terminal {
			return
		}
		b := key.bit(i)
		if node.children[b] == nil {
			node.children[b] = &prefixTrieNode{}
		}
		node = node.children[b]
	}
	node.terminal = true
	node.children = [2]*prefixTrieNode{}
}

// empty reports whether the matcher holds no ranges.
func (m prefixMatcher) empty() bool {
	return m.root == nil
}

// contains reports whether ip falls inside any stored range. IPv4 and
// IPv4-mapped IPv6 forms of an address give the same answer.
func (m prefixMatcher) contains(ip netip.Addr) bool {
	if m.root == nil || !ip.IsValid() {
		return false
	}

	key := keyOf(ip)
	node := m.root
	for i := 0; ; i++ {
		if node.terminal {
			return true
		}
		if i == 128 {
			return false
		}
		node = node.children[key.bit(i)]
		if node == nil {
			return false
		}
	}
}
