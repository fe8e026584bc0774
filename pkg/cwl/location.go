// Package cwl provides CWL value and location handling utilities shared by
// the replica engine and the step runner.
package cwl

import "strings"

// LFNPrefix marks a location string as a logical file name reference.
// The remainder of the string is the catalog key.
const LFNPrefix = "LFN:"

// Supported URI schemes for File/Directory locations.
const (
	SchemeFile  = "file"
	SchemeRoot  = "root"
	SchemeXRoot = "xroot"
	SchemeHTTPS = "https"
	SchemeHTTP  = "http"
	SchemeS3    = "s3"
)

// IsLFN reports whether a location string is an LFN reference.
func IsLFN(location string) bool {
	return strings.HasPrefix(location, LFNPrefix)
}

// StripLFN removes the LFN: marker, returning the bare catalog key.
// Non-LFN strings are returned unchanged.
func StripLFN(location string) string {
	return strings.TrimPrefix(location, LFNPrefix)
}

// ParseLocationScheme extracts the scheme from a location URI.
// Returns ("root", "//server/file.dat") style pairs split on "://".
// Returns ("", raw) for bare strings with no scheme.
func ParseLocationScheme(location string) (scheme, path string) {
	if i := strings.Index(location, "://"); i > 0 {
		scheme = strings.ToLower(location[:i])
		path = location[i+3:]
		// Normalize file:///path → /path
		if scheme == SchemeFile {
			path = "/" + strings.TrimLeft(path, "/")
		}
		return scheme, path
	}
	return "", location
}

// BuildLocation constructs a scheme://path URI.
func BuildLocation(scheme, path string) string {
	if scheme == SchemeFile {
		return "file://" + path
	}
	return scheme + "://" + path
}

// IsRemoteScheme reports whether a scheme refers to wide-area data access.
// Anything other than file (and the bare-path empty scheme) is remote:
// existence and size of such locations are assumed, never actively checked.
func IsRemoteScheme(scheme string) bool {
	return scheme != "" && scheme != SchemeFile
}

// IsRemoteURL reports whether a raw location string is a bare remote URL.
func IsRemoteURL(location string) bool {
	scheme, _ := ParseLocationScheme(location)
	return IsRemoteScheme(scheme)
}
