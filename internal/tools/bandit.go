package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joescharf/codereview/internal/models"
)

// Bandit runs the Python security linter over a directory.
type Bandit struct {
	Python  string
	Timeout time.Duration
	Exec    Runner
}

// NewBandit returns a Bandit wrapper using python as the interpreter.
func NewBandit(python string, timeout time.Duration) *Bandit {
	if python == "" {
		python = "python3"
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Bandit{Python: python, Timeout: timeout, Exec: ExecRunner}
}

func (b *Bandit) Name() string { return "bandit" }

type banditReport struct {
	Results []struct {
		Filename        string `json:"filename"`
		LineNumber      int    `json:"line_number"`
		IssueSeverity   string `json:"issue_severity"`
		IssueConfidence string `json:"issue_confidence"`
		TestID          string `json:"test_id"`
		TestName        string `json:"test_name"`
		IssueText       string `json:"issue_text"`
		Code            string `json:"code"`
		IssueCWE        struct {
			ID int `json:"id"`
		} `json:"issue_cwe"`
	} `json:"results"`
}

// Run scans dir recursively, reporting medium severity and above. Only
// Python files are analysed, so it returns nothing when files holds none.
func (b *Bandit) Run(ctx context.Context, dir string, files []models.FileEntry) ([]Diagnostic, error) {
	if !hasExtension(files, ".py") {
		return nil, nil
	}
	ctx, cancel := withTimeout(ctx, b.Timeout)
	defer cancel()

	out, err := b.Exec(ctx, b.Python, "-m", "bandit", "-f", "json", "-ll", "-q", "-r", dir)
	if err != nil {
		return nil, fmt.Errorf("bandit: %w", err)
	}
	if len(strings.TrimSpace(string(out))) == 0 {
		return nil, nil
	}
	return parseBandit(dir, out)
}

func parseBandit(dir string, data []byte) ([]Diagnostic, error) {
	var report banditReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse bandit output: %w", err)
	}
	diags := make([]Diagnostic, 0, len(report.Results))
	for _, r := range report.Results {
		diags = append(diags, Diagnostic{
			Tool:       "bandit",
			File:       relTo(dir, r.Filename),
			Line:       r.LineNumber,
			Rule:       r.TestID,
			Name:       r.TestName,
			Message:    r.IssueText,
			Severity:   models.ParseLevel(r.IssueSeverity),
			Confidence: models.ParseLevel(r.IssueConfidence),
			Snippet:    strings.TrimSpace(r.Code),
			CWE:        r.IssueCWE.ID,
		})
	}
	return diags, nil
}

func hasExtension(files []models.FileEntry, ext string) bool {
	for _, f := range files {
		if f.Extension == ext {
			return true
		}
	}
	return false
}
