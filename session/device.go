package session

import (
	"encoding/hex"
	"strings"

	"github.com/zeebo/blake3"
)

// DeviceType classifies the client form factor.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceUnknown DeviceType = "unknown"
)

// Unknown is the browser and OS name used when nothing matches.
const Unknown = "Unknown"

// Device is the parsed form of a user-agent string.
type Device struct {
	Type    DeviceType
	Browser string
	OS      string
}

type uaRule struct {
	needle string
	name   string
}

// Order matters: Edge and Opera advertise Chrome, Chrome advertises
// Safari, and iPad/Android advertise desktop platforms.
var browserRules = []uaRule{
	{"edg/", "Edge"},
	{"edge/", "Edge"},
	{"opr/", "Opera"},
	{"opera", "Opera"},
	{"samsungbrowser/", "Samsung Internet"},
	{"firefox/", "Firefox"},
	{"fxios/", "Firefox"},
	{"crios/", "Chrome"},
	{"chrome/", "Chrome"},
	{"chromium/", "Chromium"},
	{"safari/", "Safari"},
	{"msie ", "Internet Explorer"},
	{"trident/", "Internet Explorer"},
}

var osRules = []uaRule{
	{"windows", "Windows"},
	{"iphone", "iOS"},
	{"ipad", "iOS"},
	{"ipod", "iOS"},
	{"android", "Android"},
	{"cros ", "ChromeOS"},
	{"mac os x", "macOS"},
	{"macintosh", "macOS"},
	{"linux", "Linux"},
}

// ParseUserAgent classifies ua. Unrecognized input yields DeviceUnknown and
// Unknown names; it never fails.
func ParseUserAgent(ua string) Device {
	s := strings.ToLower(strings.TrimSpace(ua))
	d := Device{Type: DeviceUnknown, Browser: Unknown, OS: Unknown}
	if s == "" {
		return d
	}
	d.Browser = firstMatch(s, browserRules)
	d.OS = firstMatch(s, osRules)
	d.Type = deviceType(s)
	return d
}

func firstMatch(s string, rules []uaRule) string {
	for _, r := range rules {
		if strings.Contains(s, r.needle) {
			return r.name
		}
	}
	return Unknown
}

func deviceType(s string) DeviceType {
	switch {
	case strings.Contains(s, "ipad"), strings.Contains(s, "tablet"),
		strings.Contains(s, "android") && !strings.Contains(s, "mobile"):
		return DeviceTablet
	case strings.Contains(s, "mobile"), strings.Contains(s, "iphone"),
		strings.Contains(s, "ipod"), strings.Contains(s, "android"):
		return DeviceMobile
	case strings.Contains(s, "windows"), strings.Contains(s, "macintosh"),
		strings.Contains(s, "x11"), strings.Contains(s, "cros "),
		strings.Contains(s, "linux"):
		return DeviceDesktop
	}
	return DeviceUnknown
}

// Fingerprint returns a hex BLAKE3 digest of the device attributes and ip.
func Fingerprint(d Device, ip string) string {
	h := blake3.New()
	_, _ = h.Write([]byte("goauthz/device/v1\x00"))
	for _, part := range []string{string(d.Type), d.Browser, d.OS, ip} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
