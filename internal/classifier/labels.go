// Package classifier provides the identity classifiers that turn a face
// embedding into per-student probabilities, and the label files mapping class
// indices back to matric numbers.
package classifier

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrLabelOutOfRange is returned when a class index has no label.
var ErrLabelOutOfRange = errors.New("class index out of range")

// Labels maps class indices to student identifiers.
type Labels []string

// LoadLabels reads a label file with one identifier per line. Blank lines and
// lines starting with # are ignored.
func LoadLabels(path string) (Labels, error) {
	f, err := os.Open(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer f.Close()
	return ReadLabels(f)
}

// ReadLabels parses labels from r.
func ReadLabels(r io.Reader) (Labels, error) {
	var labels Labels
	seen := make(map[string]int)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if prev, ok := seen[line]; ok {
			return nil, fmt.Errorf("duplicate label %q (classes %d and %d)", line, prev, len(labels))
		}
		seen[line] = len(labels)
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, errors.New("labels file is empty")
	}
	return labels, nil
}

// Decode returns the identifier of class index.
func (l Labels) Decode(index int) (string, error) {
	if index < 0 || index >= len(l) {
		return "", fmt.Errorf("%w: %d (have %d labels)", ErrLabelOutOfRange, index, len(l))
	}
	return l[index], nil
}

// Index returns the class index of an identifier, or -1.
func (l Labels) Index(id string) int {
	for i, label := range l {
		if label == id {
			return i
		}
	}
	return -1
}
