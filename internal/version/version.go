package version

// Values for these are injected by the build
var (
	version = "dev"
	commit  string
)

// Version returns the stagegate version. This is typically a semantic
// version, but in the case of unreleased code, could be another descriptor
// such as "dev".
func Version() string {
	return version
}

// Commit returns the git commit SHA stagegate was built from.
func Commit() string {
	return commit
}

// String combines Version and Commit.
func String() string {
	if Commit() == "" {
		return Version()
	}
	return Version() + "+" + Commit()
}
