package app

import "testing"

func TestBuildVersion(t *testing.T) {
	orig := Version
	defer func() { Version = orig }()

	tests := []struct {
		name    string
		version string
		want    string
	}{
		{name: "injected", version: "v1.4.0", want: "v1.4.0"},
		{name: "empty", version: "", want: "dev"},
		{name: "whitespace", version: "  ", want: "dev"},
		{name: "trimmed", version: " v2.0.0 ", want: "v2.0.0"},
	}

	for _, tc := range tests {
		Version = tc.version
		if got := BuildVersion(); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestBuildDateYMD(t *testing.T) {
	orig := BuildDate
	defer func() { BuildDate = orig }()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "empty", raw: "", want: ""},
		{name: "rfc3339", raw: "2026-08-27T10:00:00Z", want: "2026-08-27"},
		{name: "date_only", raw: "2026-08-27", want: "2026-08-27"},
		{name: "date_prefix", raw: "2026-08-27 10:00", want: "2026-08-27"},
		{name: "unparseable", raw: "yesterday", want: "yesterday"},
	}

	for _, tc := range tests {
		BuildDate = tc.raw
		if got := BuildDateYMD(); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestBuildVersionWithDate(t *testing.T) {
	origVersion, origDate := Version, BuildDate
	defer func() { Version, BuildDate = origVersion, origDate }()

	Version = "v2.0.0"
	BuildDate = "2026-08-27T00:00:00Z"
	if got := BuildVersionWithDate(); got != "v2.0.0 (2026-08-27)" {
		t.Fatalf("expected version with date, got %q", got)
	}

	BuildDate = ""
	if got := BuildVersionWithDate(); got != "v2.0.0" {
		t.Fatalf("expected bare version without date, got %q", got)
	}
}
