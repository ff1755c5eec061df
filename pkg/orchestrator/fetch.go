package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/sftp"
)

// fetchResult reports what the fetch phase pulled back.
type fetchResult struct {
	FilesFetched int
	BytesFetched int64
}

// fetchArtifacts walks remoteRoot looking for files whose project-relative
// path matches one of patterns (glob syntax with "**" support, see
// matchesAny), and copies each match down into localRoot at the same
// relative path.
func fetchArtifacts(ctx context.Context, sc *sftp.Client, localRoot, remoteRoot string, patterns []string) (fetchResult, error) {
	if len(patterns) == 0 {
		return fetchResult{}, nil
	}

	var result fetchResult

	walker := sc.Walk(remoteRoot)
	for walker.Step() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := walker.Err(); err != nil {
			return result, fmt.Errorf("orchestrator: walk remote tree: %w", err)
		}

		info := walker.Stat()
		if info.IsDir() {
			continue
		}

		rel, err := filepathRelSlash(remoteRoot, walker.Path())
		if err != nil {
			continue
		}
		if rel == manifestFile {
			continue
		}
		if !matchesAny(rel, patterns) {
			continue
		}

		n, err := fetchOne(sc, localRoot, remoteRoot, rel)
		if err != nil {
			return result, fmt.Errorf("fetch %s: %w", rel, err)
		}
		result.FilesFetched++
		result.BytesFetched += n
	}

	return result, nil
}

// matchesAny reports whether relPath matches any of patterns. A pattern
// containing a "/" is matched against the full relative path; otherwise it
// is matched only against the file's base name, so a pattern like "*.wasm"
// catches a match anywhere in the tree. Matching is done with doublestar
// rather than path.Match so a "**" segment (e.g. "target/release/build/**",
// which pkg/classify emits for cargo build-script output) actually crosses
// directory boundaries instead of behaving like a single "*".
func matchesAny(relPath string, patterns []string) bool {
	base := path.Base(relPath)
	for _, pattern := range patterns {
		var ok bool
		var err error
		if path.Base(pattern) == pattern {
			ok, err = doublestar.Match(pattern, base)
		} else {
			ok, err = doublestar.Match(pattern, relPath)
		}
		if err == nil && ok {
			return true
		}
	}
	return false
}

func fetchOne(sc *sftp.Client, localRoot, remoteRoot, relPath string) (int64, error) {
	remotePath := path.Join(remoteRoot, relPath)
	localPath := filepath.Join(localRoot, filepath.FromSlash(relPath))

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, err
	}

	src, err := sc.Open(remotePath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.Create(localPath)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	return io.Copy(dst, src)
}

// filepathRelSlash is filepath.Rel for the always-forward-slash paths the
// sftp package uses, so it works regardless of the orchestrator's own OS.
func filepathRelSlash(root, full string) (string, error) {
	rel, err := path.Rel(root, full)
	if err != nil {
		return "", err
	}
	return rel, nil
}
