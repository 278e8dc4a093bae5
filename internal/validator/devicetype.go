package validator

import (
	"strings"

	"invnorm/internal/domain"
)

// deviceTypeAliases are shorthand spellings seen in operator spreadsheets
var deviceTypeAliases = map[string]domain.DeviceType{
	"srv":          domain.DeviceTypeServer,
	"fw":           domain.DeviceTypeFirewall,
	"ap":           domain.DeviceTypeWirelessAP,
	"wap":          domain.DeviceTypeWirelessAP,
	"access-point": domain.DeviceTypeWirelessAP,
	"access point": domain.DeviceTypeWirelessAP,
	"wireless ap":  domain.DeviceTypeWirelessAP,
	"wireless_ap":  domain.DeviceTypeWirelessAP,
}

// ParseDeviceType checks membership in the closed enumeration.
// Failures return DeviceTypeUnknown alongside the error.
func ParseDeviceType(raw string) (domain.DeviceType, error) {
	s := strings.ToLower(CollapseSpace(Clean(raw)))
	if s == "" {
		return domain.DeviceTypeUnknown, newError(ReasonMissing, "no device type given")
	}

	if domain.IsAllowedDeviceType(s) {
		return domain.DeviceType(s), nil
	}
	if t, ok := deviceTypeAliases[s]; ok {
		return t, nil
	}
	return domain.DeviceTypeUnknown, newError(ReasonNotAllowed, "%q is not a known device type", CollapseSpace(Clean(raw)))
}

// IsDeviceTypeAlias reports whether s is an accepted shorthand rather than an enumeration member
func IsDeviceTypeAlias(s string) bool {
	_, ok := deviceTypeAliases[strings.ToLower(CollapseSpace(s))]
	return ok
}
