package types

// Version is the canonical project version.
// It is reported by `osm version`, sent in the User-Agent header and
// stamped on every published adapter event.
const Version = "0.3.0"

// UserAgent returns the User-Agent sent with every HTTP request.
func UserAgent() string {
	return "osm-cli/" + Version
}
