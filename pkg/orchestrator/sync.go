package orchestrator

import (
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// gzipSuffix is the temporary remote extension for a compressed upload;
// decompressRemote strips it back off in place once every file has landed.
const gzipSuffix = ".gz"

// manifestFile is where the orchestrator keeps its record of what it last
// put on a worker for a given project root, so a rebuild with no source
// changes re-syncs nothing.
const manifestFile = ".rch-manifest.json"

// defaultExcludes are directories never worth shipping to a worker: version
// control metadata and the very build output directories a remote build
// regenerates from scratch.
var defaultExcludes = map[string]bool{
	".git":         true,
	"target":       true,
	"node_modules": true,
	"build":        true,
	"dist":         true,
	"_build":       true,
	".cache":       true,
}

// manifest maps a project-relative path to its content hash.
type manifest map[string]string

// syncResult reports what one sync pass did.
type syncResult struct {
	FilesUploaded int
	BytesUploaded int64
}

// syncProject uploads every local file under localRoot whose content hash
// differs from (or is absent from) the worker's last-known manifest for
// remoteRoot, skipping excluded directories. Concurrency is capped by
// maxConcurrency; total throughput is capped by limiter, if non-nil.
func syncProject(ctx context.Context, client *ssh.Client, sc *sftp.Client, localRoot, remoteRoot string, maxConcurrency int64, maxSizeBytes int64, limiter *rate.Limiter, compress bool) (syncResult, error) {
	local, totalSize, err := hashLocalTree(localRoot)
	if err != nil {
		return syncResult{}, fmt.Errorf("orchestrator: hash local tree: %w", err)
	}
	if maxSizeBytes > 0 && totalSize > maxSizeBytes {
		return syncResult{}, fmt.Errorf("orchestrator: project tree %d bytes exceeds configured max %d", totalSize, maxSizeBytes)
	}

	remote, err := readRemoteManifest(sc, remoteRoot)
	if err != nil {
		return syncResult{}, fmt.Errorf("orchestrator: read remote manifest: %w", err)
	}

	if err := sc.MkdirAll(remoteRoot); err != nil {
		return syncResult{}, fmt.Errorf("orchestrator: create remote root: %w", err)
	}

	toUpload := make([]string, 0, len(local))
	for relPath, hash := range local {
		if remote[relPath] != hash {
			toUpload = append(toUpload, relPath)
		}
	}

	sem := semaphore.NewWeighted(maxConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	var uploadedBytes atomic.Int64
	for _, relPath := range toUpload {
		relPath := relPath
		if err := sem.Acquire(gctx, 1); err != nil {
			return syncResult{}, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			n, err := uploadFile(gctx, sc, localRoot, remoteRoot, relPath, limiter, compress)
			if err != nil {
				return fmt.Errorf("upload %s: %w", relPath, err)
			}
			uploadedBytes.Add(n)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return syncResult{}, err
	}

	if compress && len(toUpload) > 0 {
		if err := decompressRemote(client, remoteRoot); err != nil {
			return syncResult{}, err
		}
	}

	if err := writeRemoteManifest(sc, remoteRoot, local); err != nil {
		return syncResult{}, fmt.Errorf("orchestrator: write remote manifest: %w", err)
	}

	return syncResult{FilesUploaded: len(toUpload), BytesUploaded: uploadedBytes.Load()}, nil
}

// decompressRemote gunzips every file the compressed upload path left with a
// .gz suffix, back to its real name, in one remote round trip rather than
// one exec per file.
func decompressRemote(client *ssh.Client, remoteRoot string) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("orchestrator: open decompress session: %w", err)
	}
	defer session.Close()

	cmd := fmt.Sprintf("find %s -name '*%s' -exec gunzip -f {} \\;", shellQuote(remoteRoot), gzipSuffix)
	if err := session.Run(cmd); err != nil {
		return fmt.Errorf("orchestrator: remote decompress: %w", err)
	}
	return nil
}

// hashLocalTree walks localRoot, hashing every regular file not under an
// excluded directory. Returns project-relative, slash-separated paths.
func hashLocalTree(localRoot string) (manifest, int64, error) {
	result := make(manifest)
	var total int64

	err := filepath.WalkDir(localRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localRoot, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if defaultExcludes[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()

		hash, err := hashFile(p)
		if err != nil {
			return err
		}
		result[filepath.ToSlash(rel)] = hash
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readRemoteManifest(sc *sftp.Client, remoteRoot string) (manifest, error) {
	f, err := sc.Open(path.Join(remoteRoot, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return manifest{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var m manifest
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return manifest{}, nil // a corrupt manifest just forces a full re-sync
	}
	return m, nil
}

func writeRemoteManifest(sc *sftp.Client, remoteRoot string, m manifest) error {
	f, err := sc.Create(path.Join(remoteRoot, manifestFile))
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(m)
}

// uploadFile copies one file from the local tree to the worker, optionally
// throttled by limiter and gzip-compressed on the wire, creating remote
// parent directories as needed. A compressed upload lands at relPath+".gz"
// for decompressRemote to restore once the whole batch has landed.
func uploadFile(ctx context.Context, sc *sftp.Client, localRoot, remoteRoot, relPath string, limiter *rate.Limiter, compress bool) (int64, error) {
	localPath := filepath.Join(localRoot, filepath.FromSlash(relPath))
	remotePath := path.Join(remoteRoot, relPath)
	if compress {
		remotePath += gzipSuffix
	}

	if err := sc.MkdirAll(path.Dir(remotePath)); err != nil {
		return 0, err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := sc.Create(remotePath)
	if err != nil {
		return 0, err
	}
	defer dst.Close()

	var writer io.Writer = dst
	if limiter != nil {
		writer = &rateLimitedWriter{ctx: ctx, w: dst, limiter: limiter}
	}

	if !compress {
		return io.Copy(writer, src)
	}

	gz := gzip.NewWriter(writer)
	n, err := io.Copy(gz, src)
	if err != nil {
		return n, err
	}
	if err := gz.Close(); err != nil {
		return n, err
	}
	return n, nil
}

// rateLimitedWriter throttles writes to at most limiter's configured rate,
// used to honor Transfer.BandwidthCapBps.
type rateLimitedWriter struct {
	ctx     context.Context
	w       io.Writer
	limiter *rate.Limiter
}

func (r *rateLimitedWriter) Write(p []byte) (int, error) {
	if err := r.limiter.WaitN(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.w.Write(p)
}

// newBandwidthLimiter builds a rate.Limiter from a bytes-per-second cap. A
// cap of 0 means uncapped, reported as a nil limiter.
func newBandwidthLimiter(bps int64) *rate.Limiter {
	if bps <= 0 {
		return nil
	}
	burst := int(bps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(bps), burst)
}
