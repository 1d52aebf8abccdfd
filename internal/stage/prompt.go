package stage

import (
	"fmt"
	"strings"

	"github.com/joescharf/codereview/internal/models"
	"github.com/joescharf/codereview/internal/scan"
)

// language names the file's language for prompts and code fences.
func language(f models.FileEntry) string {
	if lang := scan.LanguageFor(f.Extension); lang != "" {
		return lang
	}
	return "Unknown"
}

func fenceTag(f models.FileEntry) string {
	return strings.TrimPrefix(strings.ToLower(f.Extension), ".")
}

func lineCount(content string) int {
	return strings.Count(strings.TrimRight(content, "\n"), "\n") + 1
}

// writeFileInfo writes the file information section shared by all prompts.
func writeFileInfo(b *strings.Builder, f models.FileEntry, content string) {
	b.WriteString("## File Information\n")
	fmt.Fprintf(b, "- **Path**: %s\n", f.RelativePath)
	fmt.Fprintf(b, "- **Language**: %s\n", language(f))
	fmt.Fprintf(b, "- **Lines of Code**: %d\n\n", lineCount(content))
}

func writeSource(b *strings.Builder, f models.FileEntry, content string) {
	b.WriteString("## Source Code\n")
	fmt.Fprintf(b, "```%s\n%s\n```\n\n", fenceTag(f), strings.TrimRight(content, "\n"))
}

// writeSchema asks for a JSON array of objects with the given fields.
func writeSchema(b *strings.Builder, fields [][2]string) {
	b.WriteString("Return your findings as a valid JSON array:\n")
	b.WriteString("```json\n[\n  {\n")
	for i, kv := range fields {
		sep := ","
		if i == len(fields)-1 {
			sep = ""
		}
		fmt.Fprintf(b, "    %q: %s%s\n", kv[0], kv[1], sep)
	}
	b.WriteString("  }\n]\n```\n\n")
	b.WriteString("If there are no issues, return an empty array: []\n")
}
