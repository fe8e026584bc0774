package cwl

import "sort"

// Kind classifies a CWL input value.
type Kind int

const (
	KindScalar Kind = iota
	KindFile
	KindDirectory
	KindList
	KindRecord
)

// Classify determines the Kind of a decoded CWL input value.
// File and Directory objects are maps carrying a "class" discriminator;
// any other map is a record, any slice is a list, everything else a scalar.
func Classify(v any) Kind {
	switch val := v.(type) {
	case map[string]any:
		switch val["class"] {
		case "File":
			return KindFile
		case "Directory":
			return KindDirectory
		}
		return KindRecord
	case []any:
		return KindList
	default:
		return KindScalar
	}
}

// WalkFiles visits every File object reachable from v, including Files
// nested in lists, records and secondaryFiles. Visit order within a record
// is not significant; scalars are skipped.
func WalkFiles(v any, visit func(file map[string]any)) {
	switch Classify(v) {
	case KindFile:
		file := v.(map[string]any)
		visit(file)
		if secondary, ok := file["secondaryFiles"].([]any); ok {
			for _, sf := range secondary {
				WalkFiles(sf, visit)
			}
		}
	case KindDirectory:
		dir := v.(map[string]any)
		if listing, ok := dir["listing"].([]any); ok {
			for _, item := range listing {
				WalkFiles(item, visit)
			}
		}
	case KindList:
		for _, item := range v.([]any) {
			WalkFiles(item, visit)
		}
	case KindRecord:
		for _, item := range v.(map[string]any) {
			WalkFiles(item, visit)
		}
	}
}

// FileLocation returns the location (or path, as fallback) of a File object.
func FileLocation(file map[string]any) string {
	if loc, ok := file["location"].(string); ok && loc != "" {
		return loc
	}
	if p, ok := file["path"].(string); ok {
		return p
	}
	return ""
}

// ExtractLFNs collects the set of bare LFN keys referenced by File values
// anywhere in the given inputs. Keys are returned sorted and deduplicated.
func ExtractLFNs(inputs map[string]any) []string {
	seen := make(map[string]bool)
	WalkFiles(inputs, func(file map[string]any) {
		for _, field := range []string{"path", "location"} {
			if s, ok := file[field].(string); ok && IsLFN(s) {
				seen[StripLFN(s)] = true
				break
			}
		}
	})

	lfns := make([]string, 0, len(seen))
	for lfn := range seen {
		lfns = append(lfns, lfn)
	}
	sort.Strings(lfns)
	return lfns
}
