package version

import "fmt"

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = NeosyncSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// NeosyncSemVer is the current version of neosync.
	// It's the Semantic Version of the software.
	// Must be a string because scripts like dist.sh read this file.
	NeosyncSemVer = "0.1.0"
)

// UserAgent returns the user agent announced to peers.
func UserAgent() string {
	return fmt.Sprintf("/neosync:%s/", Version)
}
