package parser

import (
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// ParseDoc turns a markdown file into a ParsedDoc: one ParsedSection per
// heading-delimited chunk (plus an implicit section 0 for any preamble
// before the first heading), backtick/fence/link extraction per section,
// and a best-effort DocKind classification from the file name and title.
func (p *Parser) ParseDoc(relativePath, absolutePath string, content []byte) *types.ParsedDoc {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(content))

	sections := walkSections(root, content)
	wordCount := 0
	for _, s := range sections {
		wordCount += s.WordCount
	}

	title := sectionTitle(sections, relativePath)

	return &types.ParsedDoc{
		RelativePath: relativePath,
		FilePath:     absolutePath,
		Title:        title,
		Kind:         classifyDoc(relativePath, title),
		Sections:     sections,
		Hash:         contentHash(content),
		WordCount:    wordCount,
	}
}

func sectionTitle(sections []types.ParsedSection, relativePath string) string {
	for _, s := range sections {
		if s.Level == 1 && s.Heading != "" {
			return s.Heading
		}
	}
	if len(sections) > 0 && sections[0].Heading != "" {
		return sections[0].Heading
	}
	base := filepath.Base(relativePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func classifyDoc(relativePath, title string) types.DocKind {
	name := strings.ToLower(filepath.Base(relativePath))
	lowerTitle := strings.ToLower(title)
	lowerPath := strings.ToLower(relativePath)

	switch {
	case strings.HasPrefix(name, "readme"):
		return types.DocKindReadme
	case strings.HasPrefix(name, "changelog"):
		return types.DocKindChangelog
	case strings.Contains(lowerPath, "/adr") || strings.HasPrefix(name, "adr-") ||
		strings.Contains(lowerTitle, "decision record"):
		return types.DocKindADR
	case strings.Contains(name, "architecture") || strings.Contains(lowerTitle, "architecture"):
		return types.DocKindArchitecture
	case strings.Contains(name, "guide") || strings.Contains(name, "howto") || strings.Contains(name, "tutorial"):
		return types.DocKindGuide
	default:
		return types.DocKindOther
	}
}

// walkSections groups doc's top-level block children under the most recent
// heading. A heading starts a new section; any content preceding the first
// heading collects into an implicit section with Level 0 and no heading.
func walkSections(doc ast.Node, source []byte) []types.ParsedSection {
	var sections []types.ParsedSection
	var current *types.ParsedSection
	index := 0

	flush := func() {
		if current == nil {
			return
		}
		current.WordCount = len(strings.Fields(current.Content))
		sections = append(sections, *current)
		current = nil
	}

	for child := doc.FirstChild(); child != nil; child = child.NextSibling() {
		if h, ok := child.(*ast.Heading); ok {
			flush()
			current = &types.ParsedSection{
				Index:     index,
				Heading:   plainText(h, source),
				Level:     h.Level,
				StartLine: lineOf(h, source),
			}
			index++
			collectInlineRefs(h, source, current)
			continue
		}

		if current == nil {
			current = &types.ParsedSection{Index: index, StartLine: lineOf(child, source)}
			index++
		}

		if block := plainText(child, source); block != "" {
			if current.Content != "" {
				current.Content += "\n"
			}
			current.Content += block
		}

		if fence, ok := child.(*ast.FencedCodeBlock); ok {
			current.CodeFences = append(current.CodeFences, fenceBody(fence, source))
		}
		collectInlineRefs(child, source, current)
	}
	flush()

	for i := range sections {
		if len(sections[i].Content) > types.SectionContentMaxChars {
			sections[i].Content = sections[i].Content[:types.SectionContentMaxChars]
		}
	}
	return sections
}

type linesHaver interface {
	Lines() *text.Segments
}

func lineOf(n ast.Node, source []byte) int {
	lh, ok := n.(linesHaver)
	if !ok || lh.Lines().Len() == 0 {
		return 0
	}
	seg := lh.Lines().At(0)
	return 1 + strings.Count(string(source[:seg.Start]), "\n")
}

// plainText concatenates every literal text run under n, skipping markup
// syntax (backticks, link brackets) — just the words a reader would see.
func plainText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			sb.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func collectInlineRefs(n ast.Node, source []byte, sec *types.ParsedSection) {
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.CodeSpan:
			sec.BacktickRefs = append(sec.BacktickRefs, plainText(v, source))
		case *ast.Link:
			sec.Links = append(sec.Links, string(v.Destination))
		}
		return ast.WalkContinue, nil
	})
}

func fenceBody(fence *ast.FencedCodeBlock, source []byte) string {
	var sb strings.Builder
	lines := fence.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		sb.Write(line.Value(source))
	}
	return sb.String()
}
