// Package version carries build information stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/fzft/go-avocado/version.gitSHA1=$(git rev-parse HEAD)"
package version

import "fmt"

const Version = "0.1.0"

var (
	gitSHA1   string = "unknown"
	gitDirty  string = "unknown"
	buildID   string = "unknown"
	buildDate string = "unknown"
)

func GitSHA1() string {
	return gitSHA1
}

func GitDirty() string {
	return gitDirty
}

func BuildDate() string {
	return buildDate
}

// BuildIDRaw concatenates everything that identifies the build.
func BuildIDRaw() string {
	return buildID + buildDate + gitSHA1 + gitDirty
}

func String() string {
	return fmt.Sprintf("avocado v=%s sha=%s:%s build=%s date=%s", Version, gitSHA1, gitDirty, buildID, buildDate)
}
