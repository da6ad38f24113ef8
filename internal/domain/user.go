// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const (
	MaxUserIDLen      = 64
	MaxDisplayNameLen = 64
)

var (
	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")
	ErrUserIDEmpty = errors.New("user id empty")
)

type UserID string

// DeviceClass is a coarse tuning hint declared by the client at connect
// time. It is never trusted for authorization, only for heartbeat cadence
// and payload shape.
type DeviceClass int

const (
	DeviceDesktop DeviceClass = iota
	DeviceMobile
	DeviceLowEnd
)

func ParseDeviceClass(s string) DeviceClass {
	switch s {
	case "mobile":
		return DeviceMobile
	case "low-end", "lowend":
		return DeviceLowEnd
	default:
		return DeviceDesktop
	}
}

func (d DeviceClass) String() string {
	switch d {
	case DeviceMobile:
		return "mobile"
	case DeviceLowEnd:
		return "low-end"
	default:
		return "desktop"
	}
}

// Compact reports whether the wire codec should prefer the shortened-key
// encoding for this device.
func (d DeviceClass) Compact() bool {
	return d == DeviceMobile || d == DeviceLowEnd
}

func ValidDisplayName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrNameTooLong
	}
	return nil
}
