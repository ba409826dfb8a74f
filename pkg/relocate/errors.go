package relocate

import "fmt"

// MissingLibraryError reports a dependency that no search path resolves.
// A bundle with a dangling library reference does not load, so this stops
// the build.
type MissingLibraryError struct {
	Library  string // name as written in the load command
	Referrer string // source path of the binary that needs it
}

func (e *MissingLibraryError) Error() string {
	return fmt.Sprintf("cannot find library %s needed by %s", e.Library, e.Referrer)
}

// ConflictError reports two different libraries that would be copied to
// the same destination.
type ConflictError struct {
	Dest    string
	Sources [2]string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("libraries %s and %s both map to %s", e.Sources[0], e.Sources[1], e.Dest)
}
