package fsaccess

import (
	"errors"
	"fmt"
	"strings"
)

// ResolutionError reports an LFN that could not be resolved to a usable
// replica: either the key is absent from the bound catalog or its entry has
// no replicas attached. The message names a few known keys in scope so a
// missing-input misconfiguration can be diagnosed from the log alone.
type ResolutionError struct {
	LFN   string
	Known []string // sample of keys present in the bound catalog
}

func (e *ResolutionError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("LFN %q not resolvable: catalog in scope is empty", e.LFN)
	}
	return fmt.Sprintf("LFN %q not resolvable: known LFNs in scope: %s",
		e.LFN, strings.Join(e.Known, ", "))
}

// RemoteAccessError reports an attempt to stream a remote-scheme location
// through the resolution layer. The layer is not a remote I/O client:
// executing tools are expected to consume remote URLs directly.
type RemoteAccessError struct {
	URL string
	Op  string
}

func (e *RemoteAccessError) Error() string {
	return fmt.Sprintf("cannot %s remote location %q through the filesystem layer", e.Op, e.URL)
}

// IsResolutionError reports whether err is (or wraps) a ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}

// IsRemoteAccessError reports whether err is (or wraps) a RemoteAccessError.
func IsRemoteAccessError(err error) bool {
	var re *RemoteAccessError
	return errors.As(err, &re)
}
