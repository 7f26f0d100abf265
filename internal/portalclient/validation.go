package portalclient

import (
	"fmt"
	"net"
)

// ValidateSSID checks the 1..32 byte limit.
func ValidateSSID(ssid string) error {
	if ssid == "" {
		return NewValidationError("WiFi SSID cannot be empty")
	}
	if len(ssid) > 32 {
		return NewValidationError(fmt.Sprintf("WiFi SSID too long (max 32 bytes): %d bytes", len(ssid)))
	}
	return nil
}

// ValidatePassphrase accepts an empty passphrase (open network) or 8..63
// bytes.
func ValidatePassphrase(passphrase string) error {
	n := len(passphrase)
	if n == 0 {
		return nil
	}
	if n < 8 {
		return NewValidationError(fmt.Sprintf("WiFi passphrase too short (min 8 bytes): %d bytes", n))
	}
	if n > 63 {
		return NewValidationError(fmt.Sprintf("WiFi passphrase too long (max 63 bytes): %d bytes", n))
	}
	return nil
}

// ValidateIPv4 checks an optional dotted-quad address.
func ValidateIPv4(name, value string) error {
	if value == "" {
		return nil
	}
	if ip := net.ParseIP(value); ip == nil || ip.To4() == nil {
		return NewValidationError(fmt.Sprintf("%s: %q is not an IPv4 address", name, value))
	}
	return nil
}

// Validate returns every problem with the request.
func (r *ProvisionRequest) Validate() []error {
	var errs []error
	if err := ValidateSSID(r.SSID); err != nil {
		errs = append(errs, err)
	}
	if err := ValidatePassphrase(r.Passphrase); err != nil {
		errs = append(errs, err)
	}
	for _, f := range [][2]string{
		{"ip", r.IP}, {"gateway", r.Gateway}, {"subnet", r.Subnet}, {"dns1", r.DNS1}, {"dns2", r.DNS2},
	} {
		if err := ValidateIPv4(f[0], f[1]); err != nil {
			errs = append(errs, err)
		}
	}
	if r.IP != "" && (r.Gateway == "" || r.Subnet == "") {
		errs = append(errs, NewValidationError("static ip needs gateway and subnet"))
	}
	for k := range r.Fields {
		if k == "s" || k == "p" {
			errs = append(errs, NewValidationError(fmt.Sprintf("field %q collides with a credential field", k)))
		}
	}
	return errs
}
