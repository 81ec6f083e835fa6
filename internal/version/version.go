package version

var version = "dev"

// Version returns the current version string.
func Version() string {
	return version
}
