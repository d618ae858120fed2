// Package astutil performs AST-level edits on Go source files.
//
// Edits operate on content, not paths: the engine stages every write and
// never touches the live tree directly. Each edit re-parses its own
// output before returning, so a malformed result never leaves here.
package astutil

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
)

// HasImport reports whether src imports path. name is used in errors.
func HasImport(name string, src []byte, path string) (bool, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, name, src, parser.ParseComments)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", name, err)
	}
	return hasImport(file, path), nil
}

func hasImport(file *ast.File, path string) bool {
	quoted := fmt.Sprintf("%q", path)
	for _, imp := range file.Imports {
		if imp.Path.Value == quoted {
			return true
		}
	}
	return false
}

// AddImport returns src with path imported, creating the import
// declaration when the file has none. Idempotent: an already-imported
// path returns src unchanged. Returns whether the content changed.
func AddImport(name string, src []byte, path string) ([]byte, bool, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, name, src, parser.ParseComments)
	if err != nil {
		return nil, false, fmt.Errorf("parsing %s: %w", name, err)
	}
	if hasImport(file, path) {
		return src, false, nil
	}

	spec := &ast.ImportSpec{
		Path: &ast.BasicLit{Kind: token.STRING, Value: fmt.Sprintf("%q", path)},
	}

	// Find the first import declaration, grouped or single-line; the
	// printer parenthesizes any declaration that ends up with more than
	// one spec.
	var importDecl *ast.GenDecl
	for _, decl := range file.Decls {
		if genDecl, ok := decl.(*ast.GenDecl); ok && genDecl.Tok == token.IMPORT {
			importDecl = genDecl
			break
		}
	}
	if importDecl == nil {
		importDecl = &ast.GenDecl{Tok: token.IMPORT}
		file.Decls = append([]ast.Decl{importDecl}, file.Decls...)
	}
	importDecl.Specs = append(importDecl.Specs, spec)
	file.Imports = append(file.Imports, spec)

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return nil, false, fmt.Errorf("formatting %s: %w", name, err)
	}
	out := buf.Bytes()
	if _, err := parser.ParseFile(token.NewFileSet(), name, out, parser.ParseComments); err != nil {
		return nil, false, fmt.Errorf("%s no longer parses after edit: %w", name, err)
	}
	return out, true, nil
}
