// Package ocrtest provides a scripted ocr.Recognizer for tests.
package ocrtest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"leasecheck/pkg/models"
)

// Static returns canned text per file base name. Missing names yield no lines.
type Static struct {
	Pages map[string]string
	Errs  map[string]error

	// Panic makes Recognize panic for the named file.
	Panic string

	mu    sync.Mutex
	calls []string
}

// Recognize implements ocr.Recognizer. Each line of the canned text becomes
// one models.Line with confidence 0.99.
func (s *Static) Recognize(ctx context.Context, path string) ([]models.Line, error) {
	name := filepath.Base(path)

	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()

	if name == s.Panic {
		panic("ocrtest: scripted panic for " + name)
	}
	if err := s.Errs[name]; err != nil {
		return nil, err
	}

	var lines []models.Line
	for _, l := range strings.Split(s.Pages[name], "\n") {
		if l != "" {
			lines = append(lines, models.Line{Text: l, Confidence: 0.99})
		}
	}
	return lines, nil
}

// Calls returns the base names recognized so far, in call order.
func (s *Static) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}
