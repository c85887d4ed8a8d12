package graphbuild

import (
	"testing"
	"time"

	"github.com/graphcode-dev/graphcode-server/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTx() Tx {
	return Tx{ProjectID: "proj1", TxID: "tx1", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestBuilder_FileAndFolderChain(t *testing.T) {
	b := NewBuilder()
	pf := &types.ParsedFile{
		RelativePath: "src/pkg/util.go",
		Language:     "go",
		LOC:          10,
		Hash:         "abc123",
	}

	stmts := b.Build(testTx(), pf)
	require.NotEmpty(t, stmts)

	fileID := types.NodeID("proj1", types.LabelFile, types.FileLocalKey("src/pkg/util.go"))
	assert.Equal(t, fileID, stmts[0].Params["id"])

	var sawFolderUpsert, sawFolderContains bool
	for _, s := range stmts {
		if s.Params["id"] == types.NodeID("proj1", types.LabelFolder, types.FolderLocalKey("src/pkg")) {
			sawFolderUpsert = true
		}
		if s.Params["fromId"] == types.NodeID("proj1", types.LabelFolder, types.FolderLocalKey("src/pkg")) &&
			s.Params["toId"] == fileID {
			sawFolderContains = true
		}
	}
	assert.True(t, sawFolderUpsert, "expected a FOLDER upsert for src/pkg")
	assert.True(t, sawFolderContains, "expected FOLDER_CONTAINS edge from src/pkg folder to the file")
}

func TestBuilder_FunctionEmitsContainsEdge(t *testing.T) {
	b := NewBuilder()
	pf := &types.ParsedFile{
		RelativePath: "a.go",
		Functions: []types.ParsedFunction{
			{Name: "DoThing", Kind: "function", StartLine: 1, EndLine: 5, IsExported: true},
		},
	}

	stmts := b.Build(testTx(), pf)
	fileID := types.NodeID("proj1", types.LabelFile, types.FileLocalKey("a.go"))
	fnID := types.NodeID("proj1", types.LabelFunction, types.FunctionLocalKey("a.go", "DoThing", 0))

	var sawFn, sawEdge bool
	for _, s := range stmts {
		if s.Params["id"] == fnID {
			sawFn = true
		}
		if s.Params["fromId"] == fileID && s.Params["toId"] == fnID {
			sawEdge = true
		}
	}
	assert.True(t, sawFn)
	assert.True(t, sawEdge)
}

func TestBuilder_ClassExtendsStripsGenerics(t *testing.T) {
	b := NewBuilder()
	pf := &types.ParsedFile{
		RelativePath: "a.ts",
		Classes: []types.ParsedClass{
			{Name: "Widget", Kind: "class", Extends: "Base<T>"},
		},
	}

	stmts := b.Build(testTx(), pf)
	classID := types.NodeID("proj1", types.LabelClass, types.ClassLocalKey("a.ts", "Widget", 0))
	expectedParent := types.NodeID("proj1", types.LabelClass, ClassParentLocalKey("Base<T>"))

	var sawExtends bool
	for _, s := range stmts {
		if s.Query != "" && s.Params["fromId"] == classID && s.Params["toId"] == expectedParent {
			sawExtends = true
		}
	}
	assert.True(t, sawExtends)
	assert.Contains(t, expectedParent, "class-ref:Base:0")
}

func TestBuilder_AllStatementsCarryTxFields(t *testing.T) {
	b := NewBuilder()
	pf := &types.ParsedFile{
		RelativePath: "a.go",
		Functions:    []types.ParsedFunction{{Name: "F"}},
	}

	stmts := b.Build(testTx(), pf)
	for _, s := range stmts {
		props, ok := s.Params["props"].(map[string]any)
		if !ok {
			continue // statements without a props map
		}
		assert.Equal(t, "proj1", props["projectId"])
		assert.Equal(t, "tx1", props["txId"])
		assert.Nil(t, props["validTo"])
	}
}

func TestDocsBuilder_SectionChainAndDescribes(t *testing.T) {
	db := NewDocsBuilder(map[string]bool{"src/util.go": true}, map[string]string{"DoThing": "proj1:function:x"})
	doc := &types.ParsedDoc{
		RelativePath: "README.md",
		Title:        "README",
		Kind:         types.DocKindReadme,
		Sections: []types.ParsedSection{
			{Index: 0, Heading: "Intro", Level: 1, Content: "intro", BacktickRefs: []string{"util.go"}},
			{Index: 1, Heading: "Usage", Level: 1, Content: "usage", BacktickRefs: []string{"DoThing"}},
		},
	}

	stmts := db.Build(testTx(), doc)

	sec0 := types.NodeID("proj1", types.LabelSection, types.SectionLocalKey("README.md", 0))
	sec1 := types.NodeID("proj1", types.LabelSection, types.SectionLocalKey("README.md", 1))

	var sawNextSection, sawFileDescribes, sawSymbolDescribes bool
	for _, s := range stmts {
		if s.Params["fromId"] == sec0 && s.Params["toId"] == sec1 {
			sawNextSection = true
		}
		if s.Params["fromId"] == sec0 && s.Params["toId"] == types.NodeID("proj1", types.LabelFile, types.FileLocalKey("src/util.go")) {
			sawFileDescribes = true
		}
		if s.Params["fromId"] == sec1 && s.Params["toId"] == "proj1:function:x" {
			sawSymbolDescribes = true
		}
	}
	assert.True(t, sawNextSection)
	assert.True(t, sawFileDescribes)
	assert.True(t, sawSymbolDescribes)
}

func TestDocsBuilder_TruncatesLongSectionContent(t *testing.T) {
	db := NewDocsBuilder(nil, nil)
	longContent := make([]byte, types.SectionContentMaxChars+500)
	for i := range longContent {
		longContent[i] = 'x'
	}

	doc := &types.ParsedDoc{
		RelativePath: "GUIDE.md",
		Sections: []types.ParsedSection{
			{Index: 0, Heading: "Big", Content: string(longContent)},
		},
	}

	stmts := db.Build(testTx(), doc)
	for _, s := range stmts {
		props, ok := s.Params["props"].(map[string]any)
		if !ok {
			continue
		}
		if content, ok := props["content"].(string); ok {
			assert.LessOrEqual(t, len(content), types.SectionContentMaxChars)
		}
	}
}

func TestCycleDetector_DetectsSelfAndMutualCycles(t *testing.T) {
	cd := NewCycleDetector()
	cd.AddEdge("a", "a")
	cd.AddEdge("b", "c")
	cd.AddEdge("c", "b")
	cd.AddEdge("d", "e")

	cycles := cd.Cycles()
	require.Len(t, cycles, 2)

	var sawSelf, sawMutual bool
	for _, c := range cycles {
		switch len(c) {
		case 1:
			assert.Equal(t, "a", c[0])
			sawSelf = true
		case 2:
			sawMutual = true
		}
	}
	assert.True(t, sawSelf)
	assert.True(t, sawMutual)
}
