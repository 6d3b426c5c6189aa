package search

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/iksnae/agent-sessions/internal"
)

// CandidateFinder lists the files below roots whose base name matches glob
// and whose content contains query.
type CandidateFinder interface {
	FilesWithMatches(ctx context.Context, query string, roots []string, glob string) ([]string, error)
}

// NewFinder returns ripgrep with a direct scan fallback, or the direct scan
// alone when useRipgrep is false.
func NewFinder(fs afero.Fs, useRipgrep bool, rgPath string) CandidateFinder {
	scanner := &DirectScanner{Fs: fs}
	if !useRipgrep {
		return scanner
	}
	return &FallbackFinder{Primary: &RipgrepFinder{Path: rgPath}, Fallback: scanner}
}

// RipgrepFinder shells out to rg. It only sees the real file system.
type RipgrepFinder struct {
	// Path of the rg binary, looked up on PATH when empty
	Path string
}

func (f *RipgrepFinder) FilesWithMatches(ctx context.Context, query string, roots []string, glob string) ([]string, error) {
	bin := f.Path
	if bin == "" {
		bin = "rg"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("ripgrep not available: %w", err)
	}

	args := []string{"-F", "--files-with-matches", "--no-messages", "--hidden", "--no-ignore"}
	if glob != "" {
		args = append(args, "--glob", glob)
	}
	args = append(args, "--", query)
	args = append(args, roots...)

	cmd := exec.CommandContext(ctx, path, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		// 1 means no file matched
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return nil, fmt.Errorf("ripgrep failed: %w", err)
		}
	}

	var files []string
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			files = append(files, line)
		}
	}
	sort.Strings(files)
	return files, nil
}

// DirectScanner walks roots and reads every candidate file
type DirectScanner struct {
	Fs afero.Fs
}

func (s *DirectScanner) FilesWithMatches(ctx context.Context, query string, roots []string, glob string) ([]string, error) {
	needle := []byte(query)
	var files []string
	for _, root := range roots {
		err := afero.Walk(s.Fs, root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if info.IsDir() {
				return nil
			}
			if glob != "" {
				if ok, _ := filepath.Match(glob, info.Name()); !ok {
					return nil
				}
			}
			data, err := afero.ReadFile(s.Fs, path)
			if err != nil {
				internal.LogDebug("scan %s: %v", path, err)
				return nil
			}
			if bytes.Contains(data, needle) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

// FallbackFinder tries Primary and silently uses Fallback when it fails
type FallbackFinder struct {
	Primary  CandidateFinder
	Fallback CandidateFinder
}

func (f *FallbackFinder) FilesWithMatches(ctx context.Context, query string, roots []string, glob string) ([]string, error) {
	files, err := f.Primary.FilesWithMatches(ctx, query, roots, glob)
	if err == nil {
		return files, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	internal.LogDebug("falling back to direct scan: %v", err)
	return f.Fallback.FilesWithMatches(ctx, query, roots, glob)
}
