package merge

import "fmt"

// PathCollisionError reports a destination already occupied by a file the
// engine does not own.
type PathCollisionError struct {
	Feature string
	Path    string
}

func (e *PathCollisionError) Error() string {
	return fmt.Sprintf("feature %q: %s already exists and is not managed by bowerbird", e.Feature, e.Path)
}

// UserModifiedError reports an owned file that was edited after the engine
// last wrote it, blocking an overwrite. --force bypasses it.
type UserModifiedError struct {
	Feature string
	Path    string
}

func (e *UserModifiedError) Error() string {
	return fmt.Sprintf("feature %q: %s was modified since bowerbird wrote it (re-run with --force to overwrite)", e.Feature, e.Path)
}

// AmbiguityError reports a structured merge whose insertion point no
// longer exists or no longer means what the catalog expects.
type AmbiguityError struct {
	Feature string
	Path    string
	Detail  string
}

func (e *AmbiguityError) Error() string {
	return fmt.Sprintf("feature %q: cannot merge into %s: %s", e.Feature, e.Path, e.Detail)
}
