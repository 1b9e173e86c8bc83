package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

// BuildInfo carries the ldflags-injected identity of the running binary.
type BuildInfo struct {
	Version   string
	BuildDate string
}

type aboutResponse struct {
	Service    string `json:"service"`
	NowUTC     string `json:"now_utc"`
	GoVersion  string `json:"go_version"`
	Version    string `json:"version,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
	ModulePath string `json:"module_path,omitempty"`
	Commit     string `json:"commit,omitempty"`
	Dirty      bool   `json:"dirty,omitempty"`
}

func (s *Server) handleAbout(w http.ResponseWriter, r *http.Request) {
	resp := aboutResponse{
		Service:   "gcslink",
		NowUTC:    time.Now().UTC().Format(time.RFC3339Nano),
		GoVersion: runtime.Version(),
		Version:   s.build.Version,
		BuildDate: s.build.BuildDate,
	}

	// VCS metadata is not injected through ldflags; read it from the
	// binary when present.
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		resp.ModulePath = bi.Main.Path
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				resp.Commit = setting.Value
			case "vcs.modified":
				resp.Dirty = setting.Value == "true"
			}
		}
	}

	w.Header().Set("Cache-Control", "no-store")
	jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gcslink",
	})
}
