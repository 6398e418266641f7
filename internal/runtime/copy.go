package runtime

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
)

// Creates a directory inside the container, including parents.
func (c *Container) MkdirAll(ctx context.Context, dir string) error {
	return c.mustExec(ctx, "mkdir", nil, nil, "mkdir", "-p", dir)
}

// Copies a tar stream into the container's filesystem.
//
// The contents of r are extracted into destDir by piping them to "tar xf - -C
// destDir" inside the container.
func (c *Container) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	return c.mustExec(ctx, "tar extract", r, nil, "tar", "xf", "-", "-C", destDir)
}

// Copies a path from the container's filesystem as a tar stream.
//
// The file or directory at p is archived by running "tar chf - -C <dir>
// <base>" inside the container and streaming the output to w. Symbolic links
// are followed, so copying a versioned library link yields the library.
func (c *Container) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	return c.mustExec(ctx, "tar archive", nil, w, "tar", "chf", "-", "-C", path.Dir(p), path.Base(p))
}

// Returns the contents of the regular file at p, following symbolic links.
func (c *Container) ReadFile(ctx context.Context, p string) ([]byte, error) {
	pr, pw := io.Pipe()
	errc := make(chan error, 1)
	go func() {
		err := c.CopyFrom(ctx, pw, p)
		pw.CloseWithError(err)
		errc <- err
	}()

	data, readErr := readRegular(tar.NewReader(pr))
	io.Copy(io.Discard, pr)

	if err := <-errc; err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrRuntime, p, readErr)
	}
	return data, nil
}

// Returns the contents of the first regular file in the archive.
func readRegular(tr *tar.Reader) ([]byte, error) {
	for {
		hdr, err := tr.Next()
		if err != nil {
			if err == io.EOF {
				return nil, errors.New("no regular file in archive")
			}
			return nil, err
		}
		if hdr.Typeflag == tar.TypeReg {
			return io.ReadAll(tr)
		}
	}
}

// Helper method that runs a command inside the container, returning an error
// that includes desc if the process exits with a non-zero code.
func (c *Container) mustExec(ctx context.Context, desc string, stdin io.Reader, stdout io.Writer, args ...string) error {
	stderr := &tailBuffer{max: outputLimit}
	exitCode, err := c.exec(ctx, processIO{stdin: stdin, stdout: stdout, stderr: stderr}, nil, "", args...)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("%w: %s failed with exit code %d (%s)", ErrRuntime, desc, exitCode, stderr)
	}
	return nil
}
