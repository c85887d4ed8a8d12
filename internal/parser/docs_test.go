package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

func TestParseDoc_TitleFromFirstH1(t *testing.T) {
	src := []byte("# Widget Service\n\nA small service.\n\n## Usage\n\nCall `Render()`.\n")

	p := New()
	doc := p.ParseDoc("README.md", "/repo/README.md", src)

	assert.Equal(t, "Widget Service", doc.Title)
	assert.Equal(t, types.DocKindReadme, doc.Kind)
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "Widget Service", doc.Sections[0].Heading)
	assert.Equal(t, 1, doc.Sections[0].Level)
	assert.Equal(t, "Usage", doc.Sections[1].Heading)
	assert.Contains(t, doc.Sections[1].BacktickRefs, "Render()")
}

func TestParseDoc_CodeFencesAndLinksCollected(t *testing.T) {
	src := []byte("# Guide\n\nSee [the docs](https://example.com/docs).\n\n```go\nfunc main() {}\n```\n")

	p := New()
	doc := p.ParseDoc("docs/guide.md", "/repo/docs/guide.md", src)

	require.Len(t, doc.Sections, 1)
	section := doc.Sections[0]
	require.Len(t, section.Links, 1)
	assert.Equal(t, "https://example.com/docs", section.Links[0])
	require.Len(t, section.CodeFences, 1)
	assert.Contains(t, section.CodeFences[0], "func main()")
	assert.Equal(t, types.DocKindGuide, doc.Kind)
}

func TestParseDoc_PreambleBeforeFirstHeadingIsImplicitSection(t *testing.T) {
	src := []byte("Some intro text before any heading.\n\n# Real Title\n\nbody\n")

	p := New()
	doc := p.ParseDoc("notes.md", "/repo/notes.md", src)

	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "", doc.Sections[0].Heading)
	assert.Equal(t, 0, doc.Sections[0].Level)
	assert.Contains(t, doc.Sections[0].Content, "intro text")
	assert.Equal(t, "Real Title", doc.Title)
}

func TestParseDoc_ClassifiesChangelogAndADR(t *testing.T) {
	p := New()

	changelog := p.ParseDoc("CHANGELOG.md", "/repo/CHANGELOG.md", []byte("# Changelog\n\n## 1.0.0\n\nInitial release.\n"))
	assert.Equal(t, types.DocKindChangelog, changelog.Kind)

	adr := p.ParseDoc("docs/adr/0001-use-graphs.md", "/repo/docs/adr/0001-use-graphs.md", []byte("# Use a property graph\n\nContext.\n"))
	assert.Equal(t, types.DocKindADR, adr.Kind)
}

func TestParseDoc_NoHeadingsFallsBackToFilenameTitle(t *testing.T) {
	p := New()
	doc := p.ParseDoc("notes/todo.md", "/repo/notes/todo.md", []byte("just some plain text\n"))

	assert.Equal(t, "todo", doc.Title)
	assert.Equal(t, types.DocKindOther, doc.Kind)
}
