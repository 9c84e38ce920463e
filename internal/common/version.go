package common

// Version is the application version, overridden at build time via
// -ldflags "-X github.com/ternarybob/venari/internal/common.Version=x.y.z"
var Version = "0.3.0"

// GetVersion returns the application version
func GetVersion() string {
	return Version
}
