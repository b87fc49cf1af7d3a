package catalog

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cloudless/internal/composite"
	"github.com/sells-group/cloudless/internal/temporal"
)

// LocalOptions configures a LocalCatalog.
type LocalOptions struct {
	Root    string
	Pattern string
	// MaskSuffix is inserted before the extension ("a.tif" → "a.nuages.tif"),
	// or, with MaskDir, ends the mask file name.
	MaskSuffix string
	// MaskDir is a sibling directory holding masks whose names start with
	// the first MaskPrefixLen characters of the data file.
	MaskDir       string
	MaskPrefixLen int
	Thematic      bool
}

// LocalCatalog finds acquisitions on the local file system. Identifiers are
// slash-separated paths relative to Root.
type LocalCatalog struct {
	fsys   fs.FS
	reader Reader
	opts   LocalOptions
}

// NewLocal creates a catalog rooted at opts.Root.
func NewLocal(reader Reader, opts LocalOptions) *LocalCatalog {
	return &LocalCatalog{fsys: os.DirFS(opts.Root), reader: reader, opts: opts}
}

// List globs the pattern, keeps files dated inside the window and pairs each
// with its mask. Files without a date in their name are skipped.
func (c *LocalCatalog) List(ctx context.Context, w temporal.Window) ([]composite.CandidateRef, error) {
	matches, err := doublestar.Glob(c.fsys, c.opts.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: glob %s", c.opts.Pattern)
	}

	var refs []composite.CandidateRef
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "catalog: list cancelled")
		}
		if c.isMask(m) {
			continue
		}
		date, err := DateFromID(m)
		if err != nil {
			zap.L().Debug("catalog: skipping undated file", zap.String("file", m))
			continue
		}
		if !w.Contains(date) {
			continue
		}
		mask, err := c.maskFor(m)
		if err != nil {
			return nil, err
		}
		refs = append(refs, composite.CandidateRef{ID: m, Date: date, MaskID: mask})
	}
	sortRefs(refs)

	zap.L().Info("catalog: files found",
		zap.String("root", c.opts.Root),
		zap.String("pattern", c.opts.Pattern),
		zap.String("window", w.String()),
		zap.Int("count", len(refs)),
	)
	return refs, nil
}

func (c *LocalCatalog) isMask(name string) bool {
	switch {
	case c.opts.Thematic:
		return false
	case c.opts.MaskDir == "" && c.opts.MaskSuffix == "":
		return false
	case c.opts.MaskDir != "":
		return path.Base(path.Dir(name)) == c.opts.MaskDir
	default:
		return strings.HasSuffix(strings.TrimSuffix(name, path.Ext(name)), c.opts.MaskSuffix)
	}
}

func (c *LocalCatalog) maskFor(name string) (string, error) {
	if c.opts.Thematic {
		return name, nil
	}

	if c.opts.MaskDir != "" {
		base := path.Base(name)
		prefix := base[:min(len(base), c.opts.MaskPrefixLen)]
		pattern := path.Join(path.Dir(name), c.opts.MaskDir, escapeMeta(prefix)+"*"+escapeMeta(c.opts.MaskSuffix))
		found, err := doublestar.Glob(c.fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return "", eris.Wrapf(err, "catalog: glob %s", pattern)
		}
		if len(found) == 0 {
			return "", eris.Wrapf(ErrMaskMismatch, "catalog: no mask matching %s", pattern)
		}
		slices.Sort(found)
		return found[0], nil
	}

	ext := path.Ext(name)
	mask := strings.TrimSuffix(name, ext) + c.opts.MaskSuffix + ext
	if _, err := fs.Stat(c.fsys, mask); err != nil {
		return "", eris.Wrapf(ErrMaskMismatch, "catalog: mask %s for %s: %v", mask, name, err)
	}
	return mask, nil
}

// Fetch reads the file and its mask from disk.
func (c *LocalCatalog) Fetch(ctx context.Context, ref composite.CandidateRef) (*composite.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "catalog: fetch cancelled")
	}
	maskID := ref.MaskID
	if maskID == "" {
		return nil, eris.Errorf("catalog: %s has no cloud mask", ref.ID)
	}
	return load(c.reader, ref, c.path(ref.ID), c.path(maskID))
}

func (c *LocalCatalog) path(id string) string {
	return filepath.Join(c.opts.Root, filepath.FromSlash(id))
}

func escapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`*?[]{}\`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
