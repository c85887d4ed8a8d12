package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFile_GoTreeSitterExtractsDeclarations(t *testing.T) {
	src := []byte(`package sample

import "fmt"

type Widget struct{}

func (w *Widget) Render() string {
	return "widget"
}

func New() *Widget {
	fmt.Println("new widget")
	return &Widget{}
}
`)

	p := New()
	result := p.ParseFile("widget.go", "/repo/widget.go", src)

	require.Equal(t, "go", result.Language)
	assert.Empty(t, result.Warning)
	assert.GreaterOrEqual(t, len(result.Functions), 2)
	assert.Len(t, result.Classes, 1)
	assert.Equal(t, "Widget", result.Classes[0].Name)
	require.Len(t, result.Imports, 1)
	assert.Equal(t, "fmt", result.Imports[0].Source)
	assert.Equal(t, countLines(src), result.LOC)
	assert.NotEmpty(t, result.Hash)
}

func TestParseFile_PythonTreeSitterExtractsDeclarations(t *testing.T) {
	src := []byte(`import os


def greet(name):
    return "hi " + name


class Greeter:
    def hello(self):
        return greet("world")
`)

	p := New()
	result := p.ParseFile("greeter.py", "/repo/greeter.py", src)

	require.Equal(t, "python", result.Language)
	assert.NotEmpty(t, result.Functions)
	assert.Len(t, result.Classes, 1)
	assert.Equal(t, "Greeter", result.Classes[0].Name)
}

func TestLineScanExtract_CLikeFamilyFindsFunctionAndImport(t *testing.T) {
	src := []byte("import { helper } from './util';\n\nfunction greet(name) {\n  return 'hi ' + name;\n}\n")

	result := lineScanExtract(".js", src)

	require.Len(t, result.Functions, 1)
	assert.Equal(t, "greet", result.Functions[0].Name)
	require.Len(t, result.Imports, 1)
	assert.Equal(t, "./util", result.Imports[0].Source)
	assert.True(t, result.Imports[0].IsRelative)
}

func TestLineScanExtract_UnrecognizedFamilyYieldsEmptyFile(t *testing.T) {
	result := lineScanExtract(".proto", []byte("message Foo {}\n"))

	assert.Empty(t, result.Functions)
	assert.Empty(t, result.Classes)
	assert.Empty(t, result.Imports)
}

func TestParseFile_UnknownExtensionNeverFatal(t *testing.T) {
	src := []byte("some opaque binary-ish content\x00\x01")

	p := New()
	result := p.ParseFile("blob.dat", "/repo/blob.dat", src)

	require.NotNil(t, result)
	assert.Equal(t, "dat", result.Language)
	assert.Empty(t, result.Functions)
	assert.Empty(t, result.Classes)
}

func TestParseFile_TestSuiteDetection(t *testing.T) {
	src := []byte(`package sample

import "testing"

func TestSomething(t *testing.T) {
}
`)

	p := New()
	result := p.ParseFile("widget_test.go", "/repo/widget_test.go", src)

	require.Len(t, result.TestSuites, 1)
	assert.Equal(t, "TestSomething", result.TestSuites[0].Name)
	assert.Equal(t, "unit", result.TestSuites[0].Type)
}

func TestLanguageFromExtension_KnownAndUnknown(t *testing.T) {
	assert.Equal(t, LanguageGo, LanguageFromExtension(".go"))
	assert.Equal(t, LanguageTypeScript, LanguageFromExtension(".tsx"))
	assert.Equal(t, LanguageUnknown, LanguageFromExtension(".txt"))
}

func TestIsMarkdown(t *testing.T) {
	assert.True(t, IsMarkdown(".md"))
	assert.True(t, IsMarkdown(".MDX"))
	assert.False(t, IsMarkdown(".go"))
}
