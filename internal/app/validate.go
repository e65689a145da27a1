package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	payloadschema "github.com/Aakash091-dark/news-scraper-new/schema"
)

type validateResult struct {
	Files        int
	InvalidFiles int
	Valid        int
	Invalid      int
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	dir := fs.String("dir", "data", "Directory containing candidate .json files")
	recursive := fs.Bool("recursive", true, "Recursively scan subdirectories")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	files, err := collectJSONFiles(strings.TrimSpace(*dir), *recursive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation setup failed: %v\n", err)
		return 1
	}

	result := validateResult{}
	for _, path := range files {
		result.Files++

		candidates, itemErrors, err := readCandidateFile(path)
		if err != nil {
			result.InvalidFiles++
			fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", path, err)
			continue
		}
		for _, itemErr := range itemErrors {
			fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", path, itemErr)
		}
		result.Valid += len(candidates)
		result.Invalid += len(itemErrors)
	}

	fmt.Printf(
		"validate files=%d invalid_files=%d valid=%d invalid=%d dir=%s recursive=%t\n",
		result.Files,
		result.InvalidFiles,
		result.Valid,
		result.Invalid,
		strings.TrimSpace(*dir),
		*recursive,
	)

	if result.Files == 0 {
		fmt.Fprintf(os.Stderr, "Validation failed: no .json files found under %s\n", strings.TrimSpace(*dir))
		return 1
	}
	if result.InvalidFiles > 0 || result.Invalid > 0 {
		return 1
	}
	return 0
}

// readCandidateFile validates one file holding a candidate array or a single
// candidate object. A file-level error means nothing in it was usable.
func readCandidateFile(path string) ([]payloadschema.Candidate, []payloadschema.ItemError, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read failed: %w", err)
	}
	if !json.Valid(raw) {
		return nil, nil, fmt.Errorf("malformed JSON")
	}
	return payloadschema.ValidateCandidateBatch(json.RawMessage(raw))
}

func collectJSONFiles(root string, recursive bool) ([]string, error) {
	cleanRoot := strings.TrimSpace(root)
	if cleanRoot == "" {
		return nil, fmt.Errorf("directory path is empty")
	}

	info, err := os.Stat(cleanRoot)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", cleanRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", cleanRoot)
	}

	var files []string
	if !recursive {
		entries, err := os.ReadDir(cleanRoot)
		if err != nil {
			return nil, fmt.Errorf("read directory %s: %w", cleanRoot, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !isCandidateFile(entry.Name()) {
				continue
			}
			files = append(files, filepath.Join(cleanRoot, entry.Name()))
		}
		sort.Strings(files)
		return files, nil
	}

	err = filepath.WalkDir(cleanRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != cleanRoot {
				return filepath.SkipDir
			}
			return nil
		}
		if isCandidateFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", cleanRoot, err)
	}

	sort.Strings(files)
	return files, nil
}

func isCandidateFile(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), ".json")
}
