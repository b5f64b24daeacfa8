package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"
)

type Asset struct {
	Filename string
	MIME     string
	Data     []byte
}

// ArchiveAssets bundles the assets into a single zip. Duplicate filenames get
// a numeric suffix so nothing silently overwrites.
func ArchiveAssets(assets []Asset) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]int, len(assets))
	for _, asset := range assets {
		name := asset.Filename
		if n := seen[name]; n > 0 {
			name = dedupeName(name, n)
		}
		seen[asset.Filename]++
		w, err := zw.Create(name)
		if err != nil {
			continue
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil
		}
	}
	_ = zw.Close()
	return buf.Bytes()
}

func dedupeName(name string, n int) string {
	if idx := strings.LastIndex(name, "."); idx > 0 {
		return fmt.Sprintf("%s_%d%s", name[:idx], n, name[idx:])
	}
	return fmt.Sprintf("%s_%d", name, n)
}
