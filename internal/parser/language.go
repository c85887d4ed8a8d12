package parser

import "strings"

// Language is the tree-sitter grammar family a file extension maps to.
type Language string

const (
	LanguageGo         Language = "go"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageRust       Language = "rust"
	LanguageJava       Language = "java"
	LanguageUnknown    Language = ""
)

var extensionLanguage = map[string]Language{
	".go":   LanguageGo,
	".py":   LanguagePython,
	".js":   LanguageJavaScript,
	".jsx":  LanguageJavaScript,
	".mjs":  LanguageJavaScript,
	".cjs":  LanguageJavaScript,
	".ts":   LanguageTypeScript,
	".tsx":  LanguageTypeScript,
	".rs":   LanguageRust,
	".java": LanguageJava,
}

// LanguageFromExtension maps a file extension (with leading dot) to the
// tree-sitter grammar that handles it, or LanguageUnknown when no grammar
// is registered — such files fall through to the line-scanner extractor.
func LanguageFromExtension(ext string) Language {
	return extensionLanguage[strings.ToLower(ext)]
}

// IsMarkdown reports whether ext names a markdown document rather than a
// source file.
func IsMarkdown(ext string) bool {
	e := strings.ToLower(ext)
	return e == ".md" || e == ".markdown" || e == ".mdx"
}
