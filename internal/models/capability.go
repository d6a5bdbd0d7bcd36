package models

import "sort"

// Capability names a single permitted action.
type Capability string

const (
	CapDevicesRead    Capability = "devices:read"
	CapDevicesTrust   Capability = "devices:trust"
	CapDevicesBlock   Capability = "devices:block"
	CapDevicesUnblock Capability = "devices:unblock"
	CapSessionsManage Capability = "sessions:manage"
	CapAuditRead      Capability = "audit:read"
	CapUsersUnlock    Capability = "users:unlock"
)

// CapabilitySet is an explicit permission set. It replaces string-encoded
// permission lists: membership is a map lookup, never substring parsing.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Add inserts a capability.
func (s CapabilitySet) Add(c Capability) {
	s[c] = struct{}{}
}

// Remove deletes a capability.
func (s CapabilitySet) Remove(c Capability) {
	delete(s, c)
}

// Has reports whether the capability is present.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the capabilities in stable order.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var roleCapabilities = map[UserRole]CapabilitySet{
	RoleUser: NewCapabilitySet(
		CapDevicesRead,
		CapDevicesTrust,
		CapSessionsManage,
	),
	RoleOperator: NewCapabilitySet(
		CapDevicesRead,
		CapDevicesTrust,
		CapDevicesBlock,
		CapDevicesUnblock,
		CapSessionsManage,
		CapAuditRead,
		CapUsersUnlock,
	),
}

// CapabilitiesFor returns the capability set granted to a role.
func CapabilitiesFor(role UserRole) CapabilitySet {
	if caps, ok := roleCapabilities[role]; ok {
		return caps
	}
	return CapabilitySet{}
}
