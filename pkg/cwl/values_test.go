package cwl

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Kind
	}{
		{"file", map[string]any{"class": "File", "path": "/a"}, KindFile},
		{"directory", map[string]any{"class": "Directory"}, KindDirectory},
		{"record", map[string]any{"a": 1}, KindRecord},
		{"list", []any{1, 2}, KindList},
		{"string", "x", KindScalar},
		{"int", 3, KindScalar},
		{"nil", nil, KindScalar},
	}
	for _, tt := range tests {
		if got := Classify(tt.in); got != tt.want {
			t.Errorf("%s: Classify = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestExtractLFNs_Nested(t *testing.T) {
	inputs := map[string]any{
		"reads": map[string]any{
			"class":    "File",
			"location": "LFN:data/reads.fastq",
			"secondaryFiles": []any{
				map[string]any{"class": "File", "location": "LFN:data/reads.fastq.idx"},
			},
		},
		"refs": []any{
			map[string]any{"class": "File", "path": "LFN:ref/genome.fa"},
			map[string]any{"class": "File", "path": "/local/plain.fa"},
		},
		"group": map[string]any{
			"inner": map[string]any{"class": "File", "location": "LFN:data/reads.fastq"},
		},
		"count": 3,
	}

	got := ExtractLFNs(inputs)
	want := []string{"data/reads.fastq", "data/reads.fastq.idx", "ref/genome.fa"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractLFNs = %v, want %v", got, want)
	}
}

func TestExtractLFNs_Empty(t *testing.T) {
	if got := ExtractLFNs(map[string]any{"n": 1, "f": map[string]any{"class": "File", "path": "/p"}}); len(got) != 0 {
		t.Errorf("expected no LFNs, got %v", got)
	}
}

func TestWalkFiles_DirectoryListing(t *testing.T) {
	dir := map[string]any{
		"class": "Directory",
		"listing": []any{
			map[string]any{"class": "File", "path": "/d/a.txt"},
			map[string]any{"class": "File", "path": "/d/b.txt"},
		},
	}

	var seen []string
	WalkFiles(dir, func(f map[string]any) {
		seen = append(seen, f["path"].(string))
	})
	if len(seen) != 2 {
		t.Errorf("expected 2 files from listing, got %v", seen)
	}
}
