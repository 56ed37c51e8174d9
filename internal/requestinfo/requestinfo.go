//
//  internal/requestinfo/requestinfo.go
//
//  Per-request metadata used by the form security check and the
//  submission log: user-agent fingerprint (bot flag included), client IP,
//  and a best-effort geolocation.  The structs are inert, so they are safe
//  to log.
//
//  Dependencies
//  • github.com/avct/uasurfer          (UA parsing)
//  • github.com/oschwald/geoip2-golang (MaxMind lookup)
//

package requestinfo

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
)

//
//  -----------------------------
//  Struct definitions
//  -----------------------------
//

// UA holds the parsed user-agent properties.
type UA struct {
	Raw         string // Entire User-Agent header
	Browser     string // "Chrome", "Firefox", "Safari", etc.
	Version     string // "124.0.6367"
	OS          string // "macOS", "Windows", "Android", "iOS", etc.
	Device      string // "Desktop", "Phone", "Tablet", "Bot", ...
	IsBot       bool
	PrimaryLang string // First tag from Accept-Language ("en", "es", ...)
}

// Geo holds IP-based geolocation hints.  Fields may be empty.
type Geo struct {
	IP         net.IP
	CountryISO string
	City       string
}

// RequestInfo is stored in the request context by Enrich.
type RequestInfo struct {
	UA        UA
	Geo       Geo
	Timestamp time.Time
}

//
//  -----------------------------
//  Package-level state
//  -----------------------------
//

// geoReader is a MaxMind handle shared by all requests.  Nil disables
// geolocation.
var geoReader *geoip2.Reader

// InitGeo opens the GeoLite2-City database.  An empty path leaves geo
// lookups disabled.
func InitGeo(dbPath string) error {
	if dbPath == "" {
		return nil
	}
	r, err := geoip2.Open(dbPath)
	if err != nil {
		return fmt.Errorf("requestinfo: open GeoLite2 DB: %w", err)
	}
	geoReader = r
	return nil
}

type ctxKey struct{}

// FromContext returns the value stored by Enrich, or nil.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

// WithInfo stores info in ctx.  Tests use it to fake a bot or an address.
func WithInfo(ctx context.Context, info *RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

//
//  -----------------------------
//  Internal helpers
//  -----------------------------
//

// ParseUA converts a raw header into UA using uasurfer.
func ParseUA(uaHeader, acceptLang string) UA {
	u := uasurfer.Parse(uaHeader)

	osName := strings.TrimPrefix(u.OS.Name.String(), "OS")
	if osName == "MacOSX" {
		osName = "macOS"
	}

	return UA{
		Raw:         uaHeader,
		Browser:     strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version:     trimVersion(u.Browser.Version),
		OS:          osName,
		Device:      deviceTypeToString(u.DeviceType),
		IsBot:       u.IsBot(),
		PrimaryLang: primaryLang(acceptLang),
	}
}

// trimVersion builds "major.minor.patch" without trailing ".0" parts.
func trimVersion(v uasurfer.Version) string {
	out := strconv.Itoa(v.Major) + "." + strconv.Itoa(v.Minor) + "." + strconv.Itoa(v.Patch)
	for strings.HasSuffix(out, ".0") {
		out = strings.TrimSuffix(out, ".0")
	}
	if out == "" {
		return "0"
	}
	return out
}

func deviceTypeToString(dt uasurfer.DeviceType) string {
	switch dt {
	case uasurfer.DeviceComputer:
		return "Desktop"
	case uasurfer.DevicePhone:
		return "Phone"
	case uasurfer.DeviceTablet:
		return "Tablet"
	case uasurfer.DeviceConsole:
		return "Console"
	case uasurfer.DeviceWearable:
		return "Wearable"
	case uasurfer.DeviceTV:
		return "TV"
	default:
		return "Unknown"
	}
}

// primaryLang extracts the first language subtag before any ";q=" rule.
func primaryLang(al string) string {
	if al == "" {
		return ""
	}
	tag, _, _ := strings.Cut(al, ",")
	tag, _, _ = strings.Cut(strings.TrimSpace(tag), ";")
	return strings.ToLower(tag)
}

func lookupGeo(ip net.IP) Geo {
	if geoReader == nil || ip == nil {
		return Geo{IP: ip}
	}
	rec, err := geoReader.City(ip)
	if err != nil {
		return Geo{IP: ip}
	}
	return Geo{IP: ip, CountryISO: rec.Country.IsoCode, City: rec.City.Names["en"]}
}
