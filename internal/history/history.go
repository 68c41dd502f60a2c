// Package history simulates persistent interpreter state by replaying the
// durable fragments of earlier successful submissions ahead of new ones.
//
// Each session directory holds one .session_history_<language> file per
// history-eligible language. Access to a file is not synchronised: two
// concurrent runs on the same session may interleave their reads and appends.
package history

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const filePrefix = ".session_history_"

// Eligible reports whether language takes part in history replay.
func Eligible(language string) bool {
	_, ok := classifiers[language]
	return ok
}

// Path returns the history file of language inside a session directory.
func Path(dir, language string) string {
	return filepath.Join(dir, filePrefix+language)
}

// Extract returns the lines of code that language's classifier keeps, with
// their original line endings. It is empty for ineligible languages.
func Extract(language, code string) string {
	c, ok := classifiers[language]
	if !ok {
		return ""
	}

	var (
		b     strings.Builder
		state State
		keep  bool
	)
	for _, raw := range strings.SplitAfter(code, "\n") {
		if raw == "" {
			continue
		}
		keep, state = c.Classify(strings.TrimSuffix(raw, "\n"), state)
		if keep {
			b.WriteString(raw)
		}
	}
	return b.String()
}

// Compose prepends history to code.
func Compose(history, code string) string {
	return history + "\n" + code
}

// Load reads a history file. A missing file is an empty history.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read history: %w", err)
	}
	return string(data), nil
}

// Prepare returns the code to run for a submission: code itself, or code
// behind the session's history when language is eligible and the history is
// not blank.
func Prepare(language, code, path string) (string, error) {
	if !Eligible(language) {
		return code, nil
	}
	h, err := Load(path)
	if err != nil {
		return code, err
	}
	if strings.TrimSpace(h) == "" {
		return code, nil
	}
	return Compose(h, code), nil
}

// Append records the durable part of a successful submission. The fragment
// is newline-terminated and followed by a blank line. Nothing is written when
// the extract is blank. It reports whether the file was written.
func Append(path, language, code string) (bool, error) {
	fragment := Extract(language, code)
	if strings.TrimSpace(fragment) == "" {
		return false, nil
	}
	if !strings.HasSuffix(fragment, "\n") {
		fragment += "\n"
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(fragment + "\n"); err != nil {
		return false, fmt.Errorf("append history: %w", err)
	}
	return true, nil
}
