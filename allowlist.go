package ipgate

import (
	"net/netip"
	"strings"
)

// AllowList is an immutable set of authorized client address ranges.
//
// Single addresses are stored as full-length prefixes, so exact matches and
// range containment share one lookup. Entry order is preserved for display
// only; matching is membership, not priority. The zero value authorizes
// nothing.
type AllowList struct {
	entries []netip.Prefix
	matcher prefixMatcher
}

// NewAllowList builds an AllowList from prefixes. Invalid prefixes produce a
// *ConfigurationError.
func NewAllowList(prefixes ...netip.Prefix) (AllowList, error) {
	entries := make([]netip.Prefix, 0, len(prefixes))
	for _, prefix := range prefixes {
		if !prefix.IsValid() {
			return AllowList{}, &ConfigurationError{Field: "allowlist entry", Value: prefix.String(), Err: errInvalidPrefix}
		}
		entries = append(entries, normalizePrefix(prefix))
	}

	entries = mergeUniquePrefixes(nil, entries...)
	return AllowList{
		entries: entries,
		matcher: buildPrefixMatcher(entries),
	}, nil
}

// ParseAllowList builds an AllowList from address or CIDR literals such as
// "203.0.113.7" or "198.51.100.0/24".
func ParseAllowList(literals ...string) (AllowList, error) {
	prefixes, err := ParsePrefixes(literals...)
	if err != nil {
		return AllowList{}, err
	}
	return NewAllowList(prefixes...)
}

// MustParseAllowList is like ParseAllowList but panics on error. It is meant
// for tests and package-level variables.
func MustParseAllowList(literals ...string) AllowList {
	list, err := ParseAllowList(literals...)
	if err != nil {
		panic(err)
	}
	return list
}

// Contains reports whether addr equals a single-address entry or falls inside
// a range entry. IPv4-mapped IPv6 addresses match their IPv4 form.
func (l AllowList) Contains(addr netip.Addr) bool {
	if !addr.IsValid() || addr.Zone() != "" {
		return false
	}
	return l.matcher.contains(normalizeIP(addr))
}

// Entries returns a copy of the normalized entries in configuration order.
func (l AllowList) Entries() []netip.Prefix {
	return clonePrefixes(l.entries)
}

// Len returns the number of distinct entries.
func (l AllowList) Len() int {
	return len(l.entries)
}

// String renders the entries comma-separated, single addresses without a
// prefix length.
func (l AllowList) String() string {
	parts := make([]string, len(l.entries))
	for i, prefix := range l.entries {
		if prefix.IsSingleIP() {
			parts[i] = prefix.Addr().String()
			continue
		}
		parts[i] = prefix.String()
	}
	return strings.Join(parts, ",")
}

// IsAllowed reports whether address is authorized by list. It never fails; an
// empty list authorizes nothing.
func IsAllowed(address netip.Addr, list AllowList) bool {
	return list.Contains(address)
}
