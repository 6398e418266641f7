package build

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/cruciblehq/kiln/internal/pipeline"
)

// Directory names never copied from the host: VCS metadata, compiler output
// and kiln's own scratch space.
var excludedDirs = map[string]bool{
	".git":   true,
	".kiln":  true,
	"target": true,
}

// Executes a copy step into ctr.
//
// copyStr is "src dest" for a host copy, with src relative to source, or
// "stage:src dest" to copy out of an earlier stage's container.
func executeCopy(ctx context.Context, ctr Container, copyStr, workdir, source string, stages map[string]Container) error {
	src, dest, err := pipeline.ParseCopy(copyStr, workdir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}
	if err := ctr.MkdirAll(ctx, path.Dir(dest)); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	var produce func(io.Writer) error
	if stage, p, ok := pipeline.ParseStageSource(src); ok {
		from, ok := stages[stage]
		if !ok {
			return fmt.Errorf("%w: unknown stage %q", ErrCopy, stage)
		}
		slog.Debug("copy", "stage", stage, "src", p, "dest", dest)
		produce = func(w io.Writer) error { return from.CopyFrom(ctx, w, p) }
	} else {
		if !filepath.IsAbs(src) {
			src = filepath.Join(source, src)
		}
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("%w: %w", ErrCopy, err)
		}
		slog.Debug("copy", "src", src, "dest", dest)
		produce = func(w io.Writer) error { return writeHostTar(w, src, path.Base(dest)) }
	}

	if err := pipeTo(ctx, ctr, path.Dir(dest), produce); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}
	return nil
}

// Streams the tar archive written by produce into dir inside ctr.
func pipeTo(ctx context.Context, ctr Container, dir string, produce func(io.Writer) error) error {
	pr, pw := io.Pipe()

	var g errgroup.Group
	g.Go(func() error {
		err := produce(pw)
		pw.CloseWithError(err)
		return err
	})

	err := ctr.CopyTo(ctx, pr, dir)
	if err == nil {
		// A tar reader may stop at the end-of-archive marker, leaving padding.
		_, err = io.Copy(io.Discard, pr)
	}
	pr.CloseWithError(io.ErrClosedPipe)

	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}

// Writes src, a file or a directory tree, as a tar archive whose root entry
// is named name.
//
// Directories named in excludedDirs are skipped below the root. Entries are
// owned by root in the archive; modification times are kept because cargo
// compares them with those of its cached build output.
func writeHostTar(w io.Writer, src, name string) error {
	tw := tar.NewWriter(w)

	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && p != src && excludedDirs[d.Name()] {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		return writeTarEntry(tw, p, path.Join(name, filepath.ToSlash(rel)), d)
	})
	if err != nil {
		return err
	}
	return tw.Close()
}

func writeTarEntry(tw *tar.Writer, hostPath, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(hostPath); err != nil {
			return err
		}
	}

	hdr, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	hdr.Name = name
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "", ""

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
