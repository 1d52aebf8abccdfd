package scan

import (
	"os"
	"path/filepath"
	"strings"
)

var languages = map[string]string{
	".py":    "Python",
	".js":    "JavaScript",
	".jsx":   "JavaScript (React)",
	".ts":    "TypeScript",
	".tsx":   "TypeScript (React)",
	".java":  "Java",
	".cpp":   "C++",
	".hpp":   "C++",
	".c":     "C",
	".h":     "C",
	".cs":    "C#",
	".go":    "Go",
	".rb":    "Ruby",
	".php":   "PHP",
	".swift": "Swift",
	".kt":    "Kotlin",
	".rs":    "Rust",
	".scala": "Scala",
	".sh":    "Shell",
	".bash":  "Shell",
	".sql":   "SQL",
}

// LanguageFor names the language of a file extension, or "" if unknown.
func LanguageFor(ext string) string {
	return languages[strings.ToLower(ext)]
}

// DetectLanguage attempts to detect the primary language of a project from
// its marker files.
func DetectLanguage(path string) string {
	markers := []struct {
		file string
		lang string
	}{
		{"go.mod", "go"},
		{"package.json", "javascript"},
		{"Cargo.toml", "rust"},
		{"pyproject.toml", "python"},
		{"requirements.txt", "python"},
		{"setup.py", "python"},
		{"pom.xml", "java"},
		{"build.gradle", "java"},
		{"Gemfile", "ruby"},
	}
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(path, m.file)); err == nil {
			return m.lang
		}
	}
	return ""
}
