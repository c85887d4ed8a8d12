package parser

import (
	"strings"
	"sync"
	"unsafe"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"github.com/graphcode-dev/graphcode-server/internal/types"
)

// grammar bundles a parsed tree-sitter language with the single query that
// captures the declarations the graph builder cares about: functions,
// methods, classes, interfaces, imports, exports.
type grammar struct {
	parser *tree_sitter.Parser
	query  *tree_sitter.Query
}

// queryByLanguage holds one capture-tagged query string per grammar, in the
// spirit of the per-language setupGo/setupTypeScript functions: a single
// query string tags every declaration kind this extractor distinguishes.
var queryByLanguage = map[Language]string{
	LanguageGo: `
		(function_declaration name: (identifier) @function.name) @function
		(method_declaration name: (field_identifier) @method.name) @method
		(type_declaration (type_spec name: (type_identifier) @class.name type: (struct_type))) @class
		(type_declaration (type_spec name: (type_identifier) @class.name type: (interface_type))) @interface
		(import_spec path: (interpreted_string_literal) @import.path) @import
	`,
	LanguagePython: `
		(function_definition name: (identifier) @function.name) @function
		(class_definition name: (identifier) @class.name) @class
		(import_statement) @import
		(import_from_statement) @import
	`,
	LanguageJavaScript: `
		(function_declaration name: (identifier) @function.name) @function
		(generator_function_declaration name: (identifier) @function.name) @function
		(method_definition name: (property_identifier) @method.name) @method
		(class_declaration name: (identifier) @class.name) @class
		(import_statement source: (string) @import.path) @import
		(export_statement) @export
	`,
	LanguageTypeScript: `
		(function_declaration name: (identifier) @function.name) @function
		(method_definition name: (property_identifier) @method.name) @method
		(class_declaration name: (type_identifier) @class.name) @class
		(interface_declaration name: (type_identifier) @interface.name) @interface
		(import_statement source: (string) @import.path) @import
		(export_statement) @export
	`,
	LanguageRust: `
		(function_item name: (identifier) @function.name) @function
		(struct_item name: (type_identifier) @class.name) @class
		(trait_item name: (type_identifier) @interface.name) @interface
		(use_declaration) @import
	`,
	LanguageJava: `
		(method_declaration name: (identifier) @method.name) @method
		(class_declaration name: (identifier) @class.name) @class
		(interface_declaration name: (identifier) @interface.name) @interface
		(import_declaration) @import
	`,
}

var (
	grammarsOnce sync.Once
	grammars     map[Language]*grammar
	grammarsMu   sync.Mutex
)

func loadGrammars() map[Language]*grammar {
	grammarsOnce.Do(func() {
		grammars = make(map[Language]*grammar, len(queryByLanguage))
		register(LanguageGo, tree_sitter_go.Language())
		register(LanguagePython, tree_sitter_python.Language())
		register(LanguageJavaScript, tree_sitter_javascript.Language())
		register(LanguageTypeScript, tree_sitter_typescript.LanguageTypescript())
		register(LanguageRust, tree_sitter_rust.Language())
		register(LanguageJava, tree_sitter_java.Language())
	})
	return grammars
}

func register(lang Language, ptr unsafe.Pointer) {
	tsLanguage := tree_sitter.NewLanguage(ptr)
	tsParser := tree_sitter.NewParser()
	if err := tsParser.SetLanguage(tsLanguage); err != nil {
		return
	}
	query, err := tree_sitter.NewQuery(tsLanguage, queryByLanguage[lang])
	if err != nil || query == nil {
		return
	}
	grammars[lang] = &grammar{parser: tsParser, query: query}
}

// treeSitterExtract parses content with lang's grammar and extracts
// functions/methods/classes/interfaces/imports/exports into a ParsedFile.
// Returns (nil, false) when no grammar is registered or parsing fails, so
// the caller falls back to the line-scanner extractor.
func treeSitterExtract(lang Language, content []byte) (*types.ParsedFile, bool) {
	g := loadGrammars()[lang]
	if g == nil {
		return nil, false
	}

	grammarsMu.Lock()
	tree := g.parser.Parse(content, nil)
	grammarsMu.Unlock()
	if tree == nil {
		return nil, false
	}
	defer tree.Close()

	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	matches := qc.Matches(g.query, tree.RootNode(), content)
	captureNames := g.query.CaptureNames()

	out := &types.ParsedFile{}
	seenImports := 0

	for {
		match := matches.Next()
		if match == nil {
			break
		}

		names := make(map[string]string, 2)
		for _, c := range match.Captures {
			name := captureNames[c.Index]
			if strings.HasSuffix(name, ".name") || strings.HasSuffix(name, ".path") {
				names[name] = string(content[c.Node.StartByte():c.Node.EndByte()])
			}
		}

		for _, c := range match.Captures {
			node := c.Node
			capture := captureNames[c.Index]
			startLine := int(node.StartPosition().Row) + 1
			endLine := int(node.EndPosition().Row) + 1

			switch capture {
			case "function":
				out.Functions = append(out.Functions, types.ParsedFunction{
					Name:      names["function.name"],
					Kind:      "function",
					StartLine: startLine,
					EndLine:   endLine,
				})
			case "method":
				out.Functions = append(out.Functions, types.ParsedFunction{
					Name:      names["method.name"],
					Kind:      "method",
					StartLine: startLine,
					EndLine:   endLine,
				})
			case "class":
				out.Classes = append(out.Classes, types.ParsedClass{
					Name:      names["class.name"],
					Kind:      "class",
					StartLine: startLine,
					EndLine:   endLine,
				})
			case "interface":
				out.Classes = append(out.Classes, types.ParsedClass{
					Name:      names["interface.name"],
					Kind:      "interface",
					StartLine: startLine,
					EndLine:   endLine,
				})
			case "import":
				source := names["import.path"]
				source = strings.Trim(source, `"'`)
				out.Imports = append(out.Imports, types.ParsedImport{
					Source:     source,
					StartLine:  startLine,
					IsRelative: strings.HasPrefix(source, "."),
				})
				seenImports++
			case "export":
				out.Exports = append(out.Exports, types.ParsedExport{
					StartLine: startLine,
				})
			}
		}
	}

	return out, true
}
