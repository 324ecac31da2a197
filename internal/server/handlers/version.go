package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"
)

// build holds what /version reports. Fields are set once at startup.
var build = struct {
	sync.RWMutex
	version, commit, date string
	identity              *appidentity.Identity
	client                *ClientInfo
	started               time.Time
}{version: "dev", commit: "unknown", date: "unknown", started: time.Now()}

// SetVersionInfo records the build stamp injected by main.
func SetVersionInfo(version, commit, buildDate string) {
	build.Lock()
	defer build.Unlock()
	build.version, build.commit, build.date = version, commit, buildDate
}

func SetAppIdentity(identity *appidentity.Identity) {
	build.Lock()
	defer build.Unlock()
	build.identity = identity
}

// SetClientInfo records the upstream API the server talks to.
func SetClientInfo(baseURL, userAgent string, workloadTypes []string) {
	build.Lock()
	defer build.Unlock()
	build.client = &ClientInfo{
		BaseURL:       baseURL,
		UserAgent:     userAgent,
		WorkloadTypes: append([]string(nil), workloadTypes...),
	}
}

// VersionResponse is the body of GET /version.
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Client       *ClientInfo `json:"client,omitempty"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

// ClientInfo describes the configured API client.
type ClientInfo struct {
	BaseURL       string   `json:"base_url,omitempty"`
	UserAgent     string   `json:"user_agent"`
	WorkloadTypes []string `json:"workload_types,omitempty"`
}

type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
	Uptime        string `json:"uptime"`
}

func binaryName(identity *appidentity.Identity) string {
	if identity != nil && identity.BinaryName != "" {
		return identity.BinaryName
	}
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return "unknown"
}

// VersionHandler handles GET /version.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	deps := crucible.GetVersion()

	build.RLock()
	resp := VersionResponse{
		App: AppInfo{
			Name:      binaryName(build.identity),
			Version:   build.version,
			Commit:    build.commit,
			BuildDate: build.date,
			GoVersion: runtime.Version(),
		},
		Client:       build.client,
		Dependencies: DepInfo{Gofulmen: deps.Gofulmen, Crucible: deps.Crucible},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
			Uptime:        time.Since(build.started).Round(time.Second).String(),
		},
	}
	build.RUnlock()

	writeJSON(w, http.StatusOK, resp)
}
