package assemble

import (
	"fmt"
	"path"
	"strings"

	"github.com/cruciblehq/kiln/internal/pipeline"
)

// Directories that belong to the build toolchain and never ship.
var toolchainPaths = []string{
	"/usr/local/cargo",
	"/usr/local/rustup",
	"/root/.cargo",
	"/root/.rustup",
}

// Compiler output directory. Release binaries are copied from it, never into it.
const buildOutput = "/app/target"

// Checks a runtime stage definition before it runs.
//
// The stage must export an image whose entrypoint is the only file copied
// from the compile stage's release directory, must not copy toolchain
// directories, and must check the architecture of every file it takes from
// another stage.
func Validate(s pipeline.Stage) error {
	if s.Image == nil {
		return fmt.Errorf("%w: stage %s exports no image", ErrInvalidImage, s.Name)
	}
	if len(s.Image.Entrypoint) != 1 {
		return fmt.Errorf("%w: entrypoint must name only the binary, got %v", ErrInvalidImage, s.Image.Entrypoint)
	}

	var binaries []string
	checked := map[string]bool{}
	for _, c := range s.Checks {
		checked[c.Source] = true
	}

	scope := pipeline.NewScope()
	for _, step := range pipeline.Flatten(s.Steps) {
		if !step.IsOperation() {
			scope.Apply(step)
			continue
		}
		if step.Copy == "" {
			continue
		}

		src, dest, err := pipeline.ParseCopy(step.Copy, scope.Resolve(step).Workdir)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidImage, err)
		}

		if under(dest, toolchainPaths) || under(dest, []string{buildOutput}) {
			return fmt.Errorf("%w: %s copies into toolchain path", ErrInvalidImage, dest)
		}

		stage, p, ok := pipeline.ParseStageSource(src)
		if !ok {
			continue
		}
		if under(p, toolchainPaths) {
			return fmt.Errorf("%w: %s copies toolchain path %s", ErrInvalidImage, stage, p)
		}
		if !checked[src] {
			return fmt.Errorf("%w: %s has no architecture check", ErrInvalidImage, src)
		}
		if strings.Contains(p, "/release/") {
			binaries = append(binaries, dest)
		}
	}

	switch {
	case len(binaries) == 0:
		return fmt.Errorf("%w: no binary copied", ErrInvalidImage)
	case len(binaries) > 1:
		return fmt.Errorf("%w: %d binaries copied, want one", ErrInvalidImage, len(binaries))
	case binaries[0] != s.Image.Entrypoint[0]:
		return fmt.Errorf("%w: entrypoint %s is not the binary %s", ErrInvalidImage, s.Image.Entrypoint[0], binaries[0])
	}
	return nil
}

func under(p string, roots []string) bool {
	p = path.Clean(p)
	for _, r := range roots {
		if p == r || strings.HasPrefix(p, r+"/") {
			return true
		}
	}
	return false
}
