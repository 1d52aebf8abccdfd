package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/scan"
)

// Check represents a single repository hygiene check.
type Check struct {
	Name      string
	Passed    bool
	Detail    string
	File      string
	Principle string
}

// Hygiene checks repository-level conventions a reviewer expects: a README,
// a license, ignore rules, tests and the language's manifest.
type Hygiene struct{}

// NewHygiene returns a new Hygiene tool.
func NewHygiene() *Hygiene {
	return &Hygiene{}
}

func (h *Hygiene) Name() string { return "hygiene" }

// Checks evaluates all hygiene checks for the project at path.
func (h *Hygiene) Checks(path string, files []models.FileEntry) []Check {
	var checks []Check

	checks = append(checks, checkAnyFile(path, "README", "Documentation", "README.md", "README.rst", "README.txt", "README"))
	checks = append(checks, checkAnyFile(path, "LICENSE file", "Documentation", "LICENSE", "LICENSE.md", "LICENSE.txt", "COPYING"))
	checks = append(checks, checkAnyFile(path, "Ignore rules", "Repository hygiene", ".gitignore"))
	checks = append(checks, checkHasTests(files))
	if c, ok := checkManifest(path); ok {
		checks = append(checks, c)
	}

	return checks
}

// Run reports every failed check as a LOW severity diagnostic.
func (h *Hygiene) Run(_ context.Context, dir string, files []models.FileEntry) ([]Diagnostic, error) {
	var diags []Diagnostic
	for _, c := range h.Checks(dir, files) {
		if c.Passed {
			continue
		}
		diags = append(diags, Diagnostic{
			Tool:      "hygiene",
			File:      c.File,
			Rule:      "HYGIENE",
			Name:      c.Name,
			Message:   c.Detail,
			Severity:  models.LevelLow,
			Principle: c.Principle,
		})
	}
	return diags, nil
}

var hygieneFixes = map[string]string{
	"README":              "Add a README describing what the project does and how to build and run it.",
	"LICENSE file":        "Add a LICENSE file so the terms of use are explicit.",
	"Ignore rules":        "Add a .gitignore excluding build output, dependencies and local secrets.",
	"Tests":               "Add automated tests next to the code they cover.",
	"Pinned dependencies": "Commit a lock file or pinned requirements so builds are reproducible.",
}

func checkAnyFile(base, label, principle string, names ...string) Check {
	for _, name := range names {
		if _, err := os.Stat(filepath.Join(base, name)); err == nil {
			return Check{Name: label, Passed: true, Detail: name + " found", File: name, Principle: principle}
		}
	}
	return Check{Name: label, Passed: false, Detail: names[0] + " missing", File: names[0], Principle: principle}
}

// checkManifest requires a dependency manifest for the detected language.
func checkManifest(path string) (Check, bool) {
	manifests := map[string]string{
		"go":         "go.mod",
		"javascript": "package-lock.json",
		"python":     "requirements.txt",
		"rust":       "Cargo.lock",
	}
	lang := scan.DetectLanguage(path)
	lock, ok := manifests[lang]
	if !ok {
		return Check{}, false
	}
	if lang == "python" {
		return checkAnyFile(path, "Pinned dependencies", "Reproducible builds", "requirements.txt", "poetry.lock", "uv.lock", "Pipfile.lock"), true
	}
	return checkAnyFile(path, "Pinned dependencies", "Reproducible builds", lock), true
}

func checkHasTests(files []models.FileEntry) Check {
	for _, f := range files {
		if isTestFile(f.RelativePath) {
			return Check{Name: "Tests", Passed: true, Detail: f.RelativePath + " found", File: f.RelativePath, Principle: "Testability"}
		}
	}
	return Check{Name: "Tests", Passed: false, Detail: "no test files found", File: ".", Principle: "Testability"}
}

func isTestFile(rel string) bool {
	base := filepath.Base(rel)
	switch {
	case strings.HasSuffix(base, "_test.go"),
		strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"),
		strings.HasSuffix(base, "_test.py"),
		strings.Contains(base, ".test."),
		strings.Contains(base, ".spec."),
		strings.HasSuffix(base, "Test.java"):
		return true
	}
	for _, dir := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if dir == "tests" || dir == "test" || dir == "__tests__" {
			return true
		}
	}
	return false
}
