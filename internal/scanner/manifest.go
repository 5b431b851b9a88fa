package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ManifestDirName is the per-project directory holding ingestion state; it
// is always excluded from scans of its own project.
const ManifestDirName = ".ping-mem"

// ManifestFileName is the file a Manifest is persisted to under
// ManifestDirName.
const ManifestFileName = "manifest.json"

// ManifestSchemaVersion versions the on-disk manifest shape so a future
// format change can be detected rather than silently misread.
const ManifestSchemaVersion = 1

// ManifestFile is one retained file's content-addressed record.
type ManifestFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Bytes  int64  `json:"bytes"`
}

// Manifest is the project-wide content map C11 produces: a deterministic
// function of the tree's retained file contents.
type Manifest struct {
	ProjectID     string         `json:"projectId"`
	RootPath      string         `json:"rootPath"`
	TreeHash      string         `json:"treeHash"`
	GeneratedAt   string         `json:"generatedAt"`
	SchemaVersion int            `json:"schemaVersion"`
	Files         []ManifestFile `json:"files"`
}

// ProjectID derives the deterministic project-id from an absolute root
// path: "ping-mem-" followed by the first 12 hex characters of
// SHA-256(absoluteRootPath).
func ProjectID(absRootPath string) string {
	sum := sha256.Sum256([]byte(absRootPath))
	return "ping-mem-" + hex.EncodeToString(sum[:])[:12]
}

// TreeHash computes SHA-256 over the sorted "path|sha256|size" lines, the
// same normalization ManifestFor uses to build Manifest.TreeHash.
func TreeHash(files []ManifestFile) string {
	lines := make([]string, len(files))
	for i, f := range files {
		lines[i] = fmt.Sprintf("%s|%s|%d", f.Path, f.SHA256, f.Bytes)
	}
	h := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(h[:])
}

// ManifestFor walks rootDir with the scanner's standard exclusion rules
// (plus ManifestDirName, which is never part of its own project's content)
// and produces a Manifest: SHA-256 per retained file, sorted by byte-wise
// ascending path, joined into a tree-hash.
func ManifestFor(ctx context.Context, s *Scanner, rootDir string, nowRFC3339 string) (*Manifest, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	opts := &ScanOptions{
		RootDir:          absRoot,
		RespectGitignore: true,
		ExcludePatterns:  []string{"**/" + ManifestDirName + "/**"},
	}

	results, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("scan project tree: %w", err)
	}

	files := make([]ManifestFile, 0, 256)
	for res := range results {
		if res.Error != nil {
			return nil, fmt.Errorf("scan %s: %w", res.File.Path, res.Error)
		}
		sum, size, err := hashFile(res.File.AbsPath)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", res.File.Path, err)
		}
		files = append(files, ManifestFile{Path: res.File.Path, SHA256: sum, Bytes: size})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return &Manifest{
		ProjectID:     ProjectID(absRoot),
		RootPath:      absRoot,
		TreeHash:      TreeHash(files),
		GeneratedAt:   nowRFC3339,
		SchemaVersion: ManifestSchemaVersion,
		Files:         files,
	}, nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// LoadManifest reads a previously persisted manifest from
// <projectDir>/.ping-mem/manifest.json. A missing file is not an error; it
// returns (nil, nil) so callers can treat "no previous manifest" uniformly
// with "first ingestion".
func LoadManifest(projectDir string) (*Manifest, error) {
	path := filepath.Join(projectDir, ManifestDirName, ManifestFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

// SaveManifest persists m to <projectDir>/.ping-mem/manifest.json, creating
// the directory if needed.
func SaveManifest(projectDir string, m *Manifest) error {
	dir := filepath.Join(projectDir, ManifestDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create manifest dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return os.Rename(tmp, path)
}

// HasChanges reports whether prev's tree-hash differs from cur's. A nil
// prev (no previous manifest) counts as changed.
func HasChanges(prev, cur *Manifest) bool {
	if prev == nil {
		return true
	}
	return prev.TreeHash != cur.TreeHash
}
