// Package parser provides tree-sitter-based PHP parsing. Parsed trees are
// converted into the immutable ast.Node graph the analyzers query, with
// node kinds normalised across grammar versions.
package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"

	"github.com/julianshen/larashield/internal/ast"
)

// ErrSyntax is returned when the source does not parse cleanly. Callers
// skip the file rather than analysing a partial tree.
var ErrSyntax = errors.New("syntax error")

// ErrUnsupported is returned for files the parser has no grammar for.
var ErrUnsupported = errors.New("unsupported file")

// langInfo holds tree-sitter language metadata including which node types
// carry imports.
type langInfo struct {
	lang           *sitter.Language
	importNodeType []string
}

// registry maps file extensions to language info.
var registry = map[string]langInfo{
	".php": {
		lang:           php.GetLanguage(),
		importNodeType: []string{ast.KindNamespaceUse},
	},
}

// kindAliases maps node types renamed between tree-sitter-php releases to
// the names the ast package uses.
var kindAliases = map[string]string{
	"anonymous_function_creation_expression": ast.KindClosure,
	"string_value":                           ast.KindStringContent,
}

// operatorHosts are node types whose anonymous operator token is kept.
var operatorHosts = map[string]bool{
	ast.KindBinary:              true,
	ast.KindUnary:               true,
	ast.KindAugmentedAssignment: true,
}

// Parser wraps tree-sitter. A Parser is not safe for concurrent use; each
// analyzer run creates its own.
type Parser struct {
	inner *sitter.Parser
}

// NewParser creates a new Parser instance.
func NewParser() *Parser {
	return &Parser{
		inner: sitter.NewParser(),
	}
}

// Supported reports whether filename has a registered grammar. Blade
// templates are excluded because they are not PHP syntax.
func Supported(filename string) bool {
	if strings.HasSuffix(filename, ".blade.php") {
		return false
	}
	_, ok := registry[filepath.Ext(filename)]
	return ok
}

// Parse parses source code from the given filename. It fails with
// ErrSyntax when the tree contains error nodes.
func (p *Parser) Parse(filename string, source []byte) (*Tree, error) {
	if !Supported(filename) {
		return nil, fmt.Errorf("%w %q: language not in registry", ErrUnsupported, filename)
	}
	info := registry[filepath.Ext(filename)]

	p.inner.SetLanguage(info.lang)
	sitterTree, err := p.inner.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filename, err)
	}

	root := sitterTree.RootNode()
	if root.HasError() {
		line := firstErrorLine(root)
		sitterTree.Close()
		return nil, fmt.Errorf("parse %s: %w near line %d", filename, ErrSyntax, line)
	}

	return &Tree{
		tree: sitterTree,
		info: info,
		root: convert(root, source),
	}, nil
}

// ParseFile reads and parses a file from disk.
func (p *Parser) ParseFile(path string) (*Tree, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return p.Parse(path, source)
}

// firstErrorLine returns the 1-based line of the first error or missing node.
func firstErrorLine(n *sitter.Node) int {
	line := 0
	walk(n, func(node *sitter.Node) bool {
		if line != 0 {
			return false
		}
		if node.Type() == "ERROR" || node.IsMissing() {
			line = int(node.StartPoint().Row) + 1
			return false
		}
		return node.HasError()
	})
	return line
}

// convert copies a tree-sitter subtree into ast nodes, keeping named
// children with their field names.
func convert(n *sitter.Node, source []byte) *ast.Node {
	kind := n.Type()
	if alias, ok := kindAliases[kind]; ok {
		kind = alias
	}

	var children []ast.Child
	operator := ""
	cursor := sitter.NewTreeCursor(n)
	defer cursor.Close()
	if cursor.GoToFirstChild() {
		for {
			child := cursor.CurrentNode()
			if child.IsNamed() {
				children = append(children, ast.Child{
					Field: cursor.CurrentFieldName(),
					Node:  convert(child, source),
				})
			} else if operator == "" && operatorHosts[kind] && isOperatorToken(child.Type()) {
				operator = child.Type()
			}
			if !cursor.GoToNextSibling() {
				break
			}
		}
	}

	span := ast.Span{
		Start: ast.Position{Line: int(n.StartPoint().Row) + 1, Column: int(n.StartPoint().Column) + 1},
		End:   ast.Position{Line: int(n.EndPoint().Row) + 1, Column: int(n.EndPoint().Column) + 1},
	}
	return ast.NewNode(kind, span, n.Content(source), operator, children)
}

func isOperatorToken(t string) bool {
	return t != "(" && t != ")"
}

// Tree wraps a parsed syntax tree and the imports declared in it.
type Tree struct {
	tree *sitter.Tree
	info langInfo
	root *ast.Node
}

// Root returns the root of the converted syntax tree.
func (t *Tree) Root() *ast.Node {
	return t.root
}

// Close releases the underlying tree-sitter tree. The ast nodes stay valid.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// Imports maps every alias introduced by `use` statements to the fully
// qualified name it refers to. `use Illuminate\Support\Facades\Hash;`
// yields Hash → Illuminate\Support\Facades\Hash.
func (t *Tree) Imports() ast.Imports {
	imports := make(ast.Imports)
	importTypes := make(map[string]bool, len(t.info.importNodeType))
	for _, it := range t.info.importNodeType {
		importTypes[it] = true
	}

	for node := range t.root.Descendants() {
		if !importTypes[node.Kind()] {
			continue
		}
		for alias, fqn := range extractUseClauses(node.Text()) {
			imports[alias] = fqn
		}
	}
	return imports
}

// extractUseClauses parses the text of a use declaration, including group
// syntax: `use App\Models\{User, Post as Article};`.
func extractUseClauses(text string) map[string]string {
	out := make(map[string]string)
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "use")
	text = strings.TrimSuffix(strings.TrimSpace(text), ";")
	text = strings.TrimSpace(text)
	for _, kw := range []string{"function ", "const "} {
		text = strings.TrimPrefix(text, kw)
	}

	prefix := ""
	if open := strings.Index(text, "{"); open >= 0 {
		prefix = strings.TrimSpace(text[:open])
		text = strings.TrimSuffix(strings.TrimSpace(text[open+1:]), "}")
	}

	for _, clause := range strings.Split(text, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		fqn, alias := clause, ""
		if idx := strings.Index(strings.ToLower(clause), " as "); idx >= 0 {
			fqn = strings.TrimSpace(clause[:idx])
			alias = strings.TrimSpace(clause[idx+4:])
		}
		fqn = strings.TrimPrefix(prefix+fqn, "\\")
		if alias == "" {
			alias = ast.ShortName(fqn)
		}
		out[alias] = fqn
	}
	return out
}

// walk performs a depth-first traversal of the tree-sitter tree. Children
// are visited only while fn returns true.
func walk(node *sitter.Node, fn func(*sitter.Node) bool) {
	if node == nil {
		return
	}
	if !fn(node) {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child != nil {
			walk(child, fn)
		}
	}
}
