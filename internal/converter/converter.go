package converter

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
)

// Converter renders one document file into a set of JPEG images in outputDir
// and returns their paths in page order. The rendering engine itself is an
// external black box that may fail per file.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputDir string) ([]string, error)
}

// CommandConverter invokes a converter binary as
//
//	<cmd> <input_path> <output_dir> <dpi>
//
// and collects whatever JPEGs the run produced. The binary owns naming; page
// order is recovered by sorting, which every supported converter preserves
// through zero-padded page suffixes.
type CommandConverter struct {
	cmd string
	dpi int
}

func NewCommandConverter(cmd string, dpi int) *CommandConverter {
	return &CommandConverter{cmd: cmd, dpi: dpi}
}

func (c *CommandConverter) Convert(ctx context.Context, inputPath, outputDir string) ([]string, error) {
	cmd := exec.CommandContext(ctx, c.cmd, inputPath, outputDir, strconv.Itoa(c.dpi))

	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("converter failed for %s: %w: %s", filepath.Base(inputPath), err, string(out))
	}

	images, err := listImages(outputDir)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("converter produced no images for %s", filepath.Base(inputPath))
	}

	return images, nil
}

func listImages(dir string) ([]string, error) {
	var images []string

	for _, pattern := range []string{"*.jpeg", "*.jpg"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to list converted images: %w", err)
		}
		images = append(images, matches...)
	}

	sort.Strings(images)
	return images, nil
}
