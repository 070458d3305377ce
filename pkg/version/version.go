package version

import "fmt"

var (
	// These variables are here only to show current version. Both default to "devel" and can be set at link time with -ldflags -X
	BridgeVersion         = "devel"
	GitRevision           = "devel"
	BridgeVersionRevision = fmt.Sprintf("%s-%s", BridgeVersion, GitRevision)
)
