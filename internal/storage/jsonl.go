// Package storage persists encoded samples as JSONL with a rebuildable SQLite cache.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/matsen/docqa/internal/sample"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (16MB per line).
// Long contexts with per-token char ids make sample lines much larger than
// typical records.
const MaxJSONLLineCapacity = 16 * 1024 * 1024

// ReadAll reads all samples from a JSONL file.
func ReadAll(path string) ([]sample.EncodedSample, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // Missing file returns empty slice
		}
		return nil, fmt.Errorf("opening samples file: %w", err)
	}
	defer f.Close()

	var samples []sample.EncodedSample
	scanner := bufio.NewScanner(f)

	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue // Skip empty lines
		}

		var s sample.EncodedSample
		if err := json.Unmarshal(line, &s); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", lineNum, s.QuestionID, err)
		}
		samples = append(samples, s)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading samples file: %w", err)
	}

	return samples, nil
}

// Append adds a sample to the end of a JSONL file.
func Append(path string, s sample.EncodedSample) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("validating sample %s: %w", s.QuestionID, err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening samples file for append: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding sample: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing sample: %w", err)
	}

	return nil
}

// WriteAll writes all samples to a JSONL file, replacing existing content.
func WriteAll(path string, samples []sample.EncodedSample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating samples file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i, s := range samples {
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("encoding sample %d: %w", i, err)
		}

		if _, err := w.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("writing sample %d: %w", i, err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing samples file: %w", err)
	}
	return nil
}

// FindByID searches for a sample by question ID.
func FindByID(samples []sample.EncodedSample, id sample.QuestionID) (int, bool) {
	for i, s := range samples {
		if s.QuestionID == id {
			return i, true
		}
	}
	return -1, false
}
