// Package version reports which icrag build is running. The same values
// appear in `icrag version`, in the /api/health body and in the
// implementation info the MCP server sends during initialisation, so an
// operator can match a running server to the binary that ingested its
// collections.
//
// Release builds stamp the values with -ldflags:
//
//	go build -ldflags="-X github.com/54b3r/icrag-go/internal/version.Version=v0.3.0 \
//	                    -X github.com/54b3r/icrag-go/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                    -X github.com/54b3r/icrag-go/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)" \
//	    ./cmd/icrag
package version

import "fmt"

// Stamped at build time. Unstamped builds report "dev" and "unknown".
var (
	// Version is the release tag, e.g. "v0.3.0".
	Version = "dev"
	// Commit is the short git SHA the binary was built from.
	Commit = "unknown"
	// BuildDate is the UTC build time in RFC3339.
	BuildDate = "unknown"
)

// String renders the line printed by `icrag version`.
func String() string {
	return fmt.Sprintf("icrag %s (commit %s, built %s)", Version, Commit, BuildDate)
}
