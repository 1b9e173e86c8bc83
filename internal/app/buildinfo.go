package app

import (
	"strings"
	"time"
)

// Version and BuildDate identify the binary. Release builds inject them:
//
//	go build -ldflags "-X gcslink/internal/app.Version=v1.2.0 -X gcslink/internal/app.BuildDate=2026-08-27T00:00:00Z"
var (
	Version   = "dev"
	BuildDate = ""
)

// BuildVersion returns the injected version, or "dev" for local builds.
func BuildVersion() string {
	if v := strings.TrimSpace(Version); v != "" {
		return v
	}
	return "dev"
}

// BuildDateYMD normalizes the injected build date to YYYY-MM-DD. RFC 3339
// timestamps and plain dates are accepted; anything else passes through
// untouched.
func BuildDateYMD() string {
	raw := strings.TrimSpace(BuildDate)
	if raw == "" {
		return ""
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.Format(time.DateOnly)
	}
	if len(raw) >= len(time.DateOnly) {
		date := raw[:len(time.DateOnly)]
		if _, err := time.Parse(time.DateOnly, date); err == nil {
			return date
		}
	}
	return raw
}

// BuildVersionWithDate is the one-line binary identity for the startup
// log, e.g. "v1.2.0 (2026-08-27)".
func BuildVersionWithDate() string {
	if date := BuildDateYMD(); date != "" {
		return BuildVersion() + " (" + date + ")"
	}
	return BuildVersion()
}
