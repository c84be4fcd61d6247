package knowledge

import "testing"

func TestNamespaceFromURL(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{"files/3f2a.pdf", "3f2a.pdf", false},
		{"/var/data/report.txt", "report.txt", false},
		{"doc1", "doc1", false},
		{"", "", true},
		{"   ", "", true},
	}
	for _, tc := range tests {
		got, err := NamespaceFromURL(tc.url)
		if tc.wantErr {
			if err == nil {
				t.Errorf("NamespaceFromURL(%q): expected error", tc.url)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NamespaceFromURL(%q): %v", tc.url, err)
		}
		if got != tc.want {
			t.Errorf("NamespaceFromURL(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestExtensionFromURL(t *testing.T) {
	tests := map[string]string{
		"files/a.PDF":    "pdf",
		"files/b.docx":   "docx",
		"files/noext":    "",
		"x/y/data.csv":   "csv",
		"archive.tar.gz": "gz",
	}
	for in, want := range tests {
		if got := ExtensionFromURL(in); got != want {
			t.Errorf("ExtensionFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}
