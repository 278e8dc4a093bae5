package domain

import "strings"

// DeviceType is a member of the closed device type enumeration
type DeviceType string

const (
	DeviceTypeCamera     DeviceType = "camera"
	DeviceTypeDesktop    DeviceType = "desktop"
	DeviceTypeFirewall   DeviceType = "firewall"
	DeviceTypeIoT        DeviceType = "iot"
	DeviceTypeLaptop     DeviceType = "laptop"
	DeviceTypePrinter    DeviceType = "printer"
	DeviceTypeRouter     DeviceType = "router"
	DeviceTypeServer     DeviceType = "server"
	DeviceTypeSwitch     DeviceType = "switch"
	DeviceTypeUnknown    DeviceType = "unknown"
	DeviceTypeWirelessAP DeviceType = "wireless-ap"
)

// AllowedDeviceTypes lists the enumeration in sorted order
var AllowedDeviceTypes = []DeviceType{
	DeviceTypeCamera,
	DeviceTypeDesktop,
	DeviceTypeFirewall,
	DeviceTypeIoT,
	DeviceTypeLaptop,
	DeviceTypePrinter,
	DeviceTypeRouter,
	DeviceTypeServer,
	DeviceTypeSwitch,
	DeviceTypeUnknown,
	DeviceTypeWirelessAP,
}

// IsAllowedDeviceType reports whether s is a member of the enumeration.
// The comparison is exact; callers lowercase first.
func IsAllowedDeviceType(s string) bool {
	for _, t := range AllowedDeviceTypes {
		if string(t) == s {
			return true
		}
	}
	return false
}

// AllowedDeviceTypeNames returns the enumeration as plain strings
func AllowedDeviceTypeNames() []string {
	names := make([]string, 0, len(AllowedDeviceTypes))
	for _, t := range AllowedDeviceTypes {
		names = append(names, string(t))
	}
	return names
}

// IsResolved returns true for any member other than unknown
func (t DeviceType) IsResolved() bool {
	return t != "" && t != DeviceTypeUnknown
}

// String implements fmt.Stringer
func (t DeviceType) String() string {
	return strings.TrimSpace(string(t))
}
