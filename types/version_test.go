package types //nolint:revive // types is a valid package name

import (
	"regexp"
	"strings"
	"testing"
)

func TestVersion_Format(t *testing.T) {
	// Version should be a valid semver
	semverRegex := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	if !semverRegex.MatchString(Version) {
		t.Errorf("Version %q is not a valid semver", Version)
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "osm-cli/") || !strings.HasSuffix(ua, Version) {
		t.Errorf("UserAgent() = %q, want osm-cli/%s", ua, Version)
	}
}
