package filesystem

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/riskibarqy/transaction-dispatch/internal/domain/dispatch"
	"github.com/valyala/bytebufferpool"
)

// Discovery lists dispatch candidates in the top level of a folder.
// Subdirectories are not descended into.
type Discovery struct {
	maxFileBytes int64
}

func NewDiscovery(maxFileBytes int64) *Discovery {
	return &Discovery{maxFileBytes: maxFileBytes}
}

// Discover returns regular files whose extension passes the filter, in
// lexical name order.
func (d *Discovery) Discover(ctx context.Context, folder string, extensions []string) ([]dispatch.FileEntry, error) {
	folder = dispatch.NormalizeFolderPath(folder)
	info, err := os.Stat(folder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(dispatch.ErrFolderNotFound, "folder %s", folder)
		}
		return nil, errors.Wrapf(err, "stat folder %s", folder)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(dispatch.ErrFolderNotFound, "%s is not a directory", folder)
	}

	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, errors.Wrapf(err, "list folder %s", folder)
	}

	filter := dispatch.NormalizeExtensions(extensions)
	out := make([]dispatch.FileEntry, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !dispatch.MatchesExtension(name, filter) {
			continue
		}
		out = append(out, dispatch.FileEntry{
			FullPath:    filepath.Join(folder, name),
			Name:        name,
			ContentType: dispatch.ContentTypeFor(name),
		})
	}
	return out, nil
}

func (d *Discovery) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer func() {
		_ = f.Close()
	}()

	if d.maxFileBytes > 0 {
		if info, statErr := f.Stat(); statErr == nil && info.Size() > d.maxFileBytes {
			return nil, errors.Newf("file %s is %d bytes, limit is %d", path, info.Size(), d.maxFileBytes)
		}
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := buf.ReadFrom(f); err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return append([]byte(nil), buf.B...), nil
}

func (d *Discovery) DeleteFile(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		return errors.Wrapf(err, "delete %s", path)
	}
	return nil
}
