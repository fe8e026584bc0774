package replica

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

type rawField = json.RawMessage

// FormatError reports a malformed persisted catalog document. It is fatal
// at the point of load: the engine cannot proceed without a consistent
// catalog.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed replica catalog: %v", e.Err)
	}
	return fmt.Sprintf("malformed replica catalog %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsFormatError reports whether err is (or wraps) a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// knownEntryFields are the document keys this engine interprets. Everything
// else is preserved opaquely.
var knownEntryFields = map[string]bool{
	"replicas":   true,
	"size_bytes": true,
	"checksum":   true,
}

// MarshalJSON serializes an entry with deterministic field order: the known
// fields first, then preserved unknown fields in sorted key order.
func (e Entry) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	first := true
	writeField := func(key string, value any) error {
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		keyJSON, _ := json.Marshal(key)
		buf.Write(keyJSON)
		buf.WriteByte(':')
		buf.Write(data)
		return nil
	}

	if e.Replicas != nil {
		if err := writeField("replicas", e.Replicas); err != nil {
			return nil, err
		}
	}
	if e.SizeBytes != nil {
		if err := writeField("size_bytes", *e.SizeBytes); err != nil {
			return nil, err
		}
	}
	if e.Checksum != nil {
		if err := writeField("checksum", e.Checksum); err != nil {
			return nil, err
		}
	}

	extraKeys := make([]string, 0, len(e.extra))
	for k := range e.extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		if err := writeField(k, e.extra[k]); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an entry, keeping unrecognized fields for later
// re-serialization.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*e = Entry{}
	for key, raw := range fields {
		switch key {
		case "replicas":
			if err := json.Unmarshal(raw, &e.Replicas); err != nil {
				return fmt.Errorf("replicas: %w", err)
			}
		case "size_bytes":
			var size int64
			if err := json.Unmarshal(raw, &size); err != nil {
				return fmt.Errorf("size_bytes: %w", err)
			}
			if size < 0 {
				return fmt.Errorf("size_bytes: negative value %d", size)
			}
			e.SizeBytes = &size
		case "checksum":
			if err := json.Unmarshal(raw, &e.Checksum); err != nil {
				return fmt.Errorf("checksum: %w", err)
			}
		default:
			if e.extra == nil {
				e.extra = make(map[string]rawField)
			}
			e.extra[key] = raw
		}
	}
	return nil
}

// Marshal serializes the catalog as a pretty-printed JSON document with
// deterministic key order.
func (c Catalog) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(map[string]Entry(c), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Unmarshal parses a catalog document. Returns a FormatError on malformed
// input.
func Unmarshal(data []byte) (Catalog, error) {
	var raw map[string]Entry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FormatError{Err: err}
	}
	if raw == nil {
		return New(), nil
	}
	return Catalog(raw), nil
}

// Load reads a catalog document from disk. A read failure is returned
// as-is; a parse failure is wrapped in a FormatError carrying the path.
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cat, err := Unmarshal(data)
	if err != nil {
		var fe *FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return nil, err
	}
	return cat, nil
}

// Save writes the catalog document to path.
func (c Catalog) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write catalog %s: %w", path, err)
	}
	return nil
}
