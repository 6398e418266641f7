package planner

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Hashes the entire source tree, application code included.
//
// Paths are visited in lexical order and each path and file body is
// length-prefixed, so the digest depends only on names and contents.
// Build output and hidden directories are skipped, as in [Plan]. The
// fingerprint identifies the exact source a build compiled; comparing it
// with the recipe digest shows whether a change touched dependencies or
// only application code.
func Fingerprint(root string) (string, error) {
	h := blake3.New()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		writeField(h, []byte(filepath.ToSlash(rel)))

		info, err := d.Info()
		if err != nil {
			return err
		}
		return hashFile(h, path, info.Size())
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFileSystem, err)
	}

	return "blake3:" + hex.EncodeToString(h.Sum(nil)), nil
}

// Writes a length-prefixed field.
func writeField(w io.Writer, data []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(data)))
	w.Write(n[:])
	w.Write(data)
}

// Writes a length-prefixed file body.
func hashFile(w io.Writer, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(size))
	w.Write(n[:])

	_, err = io.CopyN(w, f, size)
	return err
}
