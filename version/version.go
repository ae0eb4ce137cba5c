package version

// version is injected at build time via ldflags.
var version = "development"

// DriftdeskVersion returns the version of the running client.
func DriftdeskVersion() string {
	return version
}
