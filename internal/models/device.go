package models

import "time"

// DeviceTrustState enumerates the trust lifecycle of a device.
type DeviceTrustState string

const (
	DeviceUnknown    DeviceTrustState = "UNKNOWN"
	DeviceRegistered DeviceTrustState = "REGISTERED"
	DeviceTrusted    DeviceTrustState = "TRUSTED"
	DeviceBlocked    DeviceTrustState = "BLOCKED"
)

// Device represents a fingerprinted device observed for a user.
type Device struct {
	ID          string           `db:"id" json:"id"`
	UserID      string           `db:"user_id" json:"user_id"`
	Fingerprint string           `db:"fingerprint" json:"fingerprint"`
	Name        string           `db:"name" json:"name"`
	TrustState  DeviceTrustState `db:"trust_state" json:"trust_state"`
	UserAgent   string           `db:"user_agent" json:"user_agent"`
	LastSeenAt  time.Time        `db:"last_seen_at" json:"last_seen_at"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at" json:"updated_at"`
}

// CanTransition enforces the trust state machine. Transitions are monotonic
// except for block/unblock: BLOCKED is reachable from any state, and unblock
// returns to REGISTERED only.
func (d *Device) CanTransition(to DeviceTrustState) bool {
	if to == DeviceBlocked {
		return d.TrustState != DeviceBlocked
	}
	switch d.TrustState {
	case DeviceUnknown:
		return to == DeviceRegistered
	case DeviceRegistered:
		return to == DeviceTrusted
	case DeviceTrusted:
		return to == DeviceRegistered
	case DeviceBlocked:
		return to == DeviceRegistered
	}
	return false
}

// RequiresMFA reports whether a login from this device needs a second factor.
func (d *Device) RequiresMFA() bool {
	return d.TrustState != DeviceTrusted
}

// IsBlocked reports whether the device is blocked.
func (d *Device) IsBlocked() bool {
	return d.TrustState == DeviceBlocked
}

// DeviceSignals carries the stable request signals a fingerprint is derived
// from.
type DeviceSignals struct {
	UserAgent      string
	IP             string
	ClientDeviceID string
}

// DeviceTrustSettings holds per-user preferences for device trust behaviour.
type DeviceTrustSettings struct {
	UserID            string    `db:"user_id" json:"user_id"`
	RequireMFAAlways  bool      `db:"require_mfa_always" json:"require_mfa_always"`
	NotifyOnNewDevice bool      `db:"notify_on_new_device" json:"notify_on_new_device"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
