package splitter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kailas-cloud/kbchat/internal/domain/document"
)

// FileSink writes chunk metadata to a JSON file for inspection.
type FileSink struct {
	Path string
}

type metaInfo struct {
	StartScope string              `json:"startScope"`
	EndScope   string              `json:"endScope"`
	Lines      *document.LineRange `json:"lines,omitempty"`
	Source     string              `json:"source,omitempty"`
}

// WriteMetadata replaces the file with the given metadata list.
func (s FileSink) WriteMetadata(metas []document.Metadata) error {
	out := make([]metaInfo, len(metas))
	for i, m := range metas {
		out[i] = metaInfo{StartScope: m.StartScope, EndScope: m.EndScope, Lines: m.Loc.Lines, Source: m.Source}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create metadata dir: %w", err)
		}
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
