// Package pathsafe implements the workspace-root path-escape guard shared by
// the ACP client's file tools and the agent tool surface (read_file,
// list_files, write_file), so both call sites enforce the same boundary.
package pathsafe

import (
	"path/filepath"
	"strings"

	"github.com/routa-dev/routa/internal/routaerr"
)

// deniedMessage is the exact error text callers surface when a path
// resolves outside the workspace root.
const deniedMessage = "Access denied — path outside workspace"

// Resolve joins root and rel, cleans the result, and rejects any path that
// would land outside root, whether via ".." segments or an absolute rel
// path. Returns the cleaned absolute path.
func Resolve(root, rel string) (string, error) {
	if strings.TrimSpace(rel) == "" {
		return "", routaerr.Validation("blank path")
	}

	cleanedRoot, err := filepath.Abs(root)
	if err != nil {
		return "", routaerr.Validation("invalid workspace root: %v", err)
	}
	if filepath.IsAbs(rel) {
		cleanedRel := filepath.Clean(rel)
		if cleanedRel != cleanedRoot && !strings.HasPrefix(cleanedRel, cleanedRoot+string(filepath.Separator)) {
			return "", routaerr.AccessDenied(deniedMessage)
		}
		return cleanedRel, nil
	}

	joined := filepath.Join(cleanedRoot, rel)
	if joined != cleanedRoot && !strings.HasPrefix(joined, cleanedRoot+string(filepath.Separator)) {
		return "", routaerr.AccessDenied(deniedMessage)
	}
	return joined, nil
}
