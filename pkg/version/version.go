package version

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/network-synapse/synapse/pkg/version.Version=v1.0.0 \
//	  -X github.com/network-synapse/synapse/pkg/version.GitCommit=abc1234 \
//	  -X github.com/network-synapse/synapse/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a formatted version string for display.
func Info() string {
	return "synapse " + Version + " (" + GitCommit + ") built " + BuildDate
}

// UserAgent identifies synapse in outbound HTTP requests.
func UserAgent() string {
	return "synapse/" + Version
}
