package output

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Finalize moves a product out of the working directory into outDir.
//
// Without keep, the artifacts are copied and tempDir is removed. With keep,
// the whole of tempDir, downloaded inputs included, is moved below outDir.
// The returned artifacts point at their final location.
func Finalize(tempDir, outDir string, keep bool, a *Artifacts) (*Artifacts, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "output: create %s", outDir)
	}

	if keep {
		dest := filepath.Join(outDir, filepath.Base(tempDir))
		if err := move(tempDir, dest); err != nil {
			return nil, err
		}
		zap.L().Info("product and input files kept", zap.String("dir", dest))
		return relocate(a, dest), nil
	}

	for _, p := range a.Paths() {
		if err := copyFile(p, filepath.Join(outDir, filepath.Base(p))); err != nil {
			return nil, err
		}
	}
	if err := os.RemoveAll(tempDir); err != nil {
		zap.L().Warn("could not remove temporary directory", zap.String("dir", tempDir), zap.Error(err))
	}
	return relocate(a, outDir), nil
}

func relocate(a *Artifacts, dir string) *Artifacts {
	return &Artifacts{
		Composite:  filepath.Join(dir, filepath.Base(a.Composite)),
		Provenance: filepath.Join(dir, filepath.Base(a.Provenance)),
		Log:        filepath.Join(dir, filepath.Base(a.Log)),
		Manifest:   filepath.Join(dir, filepath.Base(a.Manifest)),
	}
}

func move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return eris.Wrapf(err, "output: move %s", src)
	}

	// Different file systems: copy, then remove.
	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(p, target)
	})
	if err != nil {
		return eris.Wrapf(err, "output: copy %s", src)
	}
	return os.RemoveAll(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "output: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	info, err := in.Stat()
	if err != nil {
		return eris.Wrapf(err, "output: stat %s", src)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "output: create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "output: copy %s", src)
	}
	if err := out.Close(); err != nil {
		return eris.Wrapf(err, "output: close %s", dst)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
