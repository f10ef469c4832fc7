package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/hbanerjee74/skill-builder/internal/core"
)

// cleanArchivePath normalizes and rejects entries that would escape the
// archive root on extraction.
func cleanArchivePath(name string) (string, error) {
	cleaned := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if cleaned == "." || cleaned == "" ||
		strings.HasPrefix(cleaned, "../") || strings.HasPrefix(cleaned, "/") {
		return "", core.ErrValidation("INVALID_ARCHIVE_PATH",
			fmt.Sprintf("invalid snapshot entry path %q", name))
	}
	return cleaned, nil
}

// validateManifest checks the format version and verifies every manifest
// file entry against the archive contents.
func validateManifest(m *Manifest, entries map[string][]byte) error {
	if m.Version != FormatVersion {
		return core.ErrValidation("UNSUPPORTED_VERSION",
			fmt.Sprintf("snapshot format version %d is not supported", m.Version))
	}
	for _, fe := range m.Files {
		data, ok := entries[fe.Path]
		if !ok {
			return core.ErrValidation("MISSING_FILE",
				fmt.Sprintf("manifest names %s but the archive does not contain it", fe.Path))
		}
		if int64(len(data)) != fe.Size {
			return core.ErrValidation("SIZE_MISMATCH",
				fmt.Sprintf("archive entry %s has size %d, manifest says %d", fe.Path, len(data), fe.Size))
		}
		hash := sha256.Sum256(data)
		if hex.EncodeToString(hash[:]) != fe.SHA256 {
			return core.ErrValidation("CHECKSUM_MISMATCH",
				fmt.Sprintf("archive entry %s fails checksum verification", fe.Path))
		}
	}
	return nil
}

// parseArtifactPath splits artifacts/step-<id>/<rel> into its parts.
func parseArtifactPath(archivePath string) (stepID int, rel string, ok bool) {
	rest, found := strings.CutPrefix(archivePath, artifactsArchiveRoot+"/")
	if !found {
		return 0, "", false
	}
	dir, rel, found := strings.Cut(rest, "/")
	if !found || rel == "" {
		return 0, "", false
	}
	idStr, found := strings.CutPrefix(dir, "step-")
	if !found {
		return 0, "", false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil || id < 0 {
		return 0, "", false
	}
	return id, rel, true
}
