package treesitter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"dtsmerge/pkg/contract"
)

// Options 为 tree-sitter 抽取器的配置。
type Options struct {
	// Namespace: 片段必须声明的命名空间；为空时接受任意命名空间。
	Namespace string `yaml:"-"`
	// MaxBytes: 单个片段的最大字节数；<=0 表示默认 8MiB。
	MaxBytes int64 `yaml:"max_bytes"`
}

// Extractor 基于 TypeScript 语法树剥离 `declare namespace X { ... }` 外壳。
// 解析器本身非并发安全，Extract 以互斥锁串行化。
type Extractor struct {
	ns       string
	maxBytes int64

	mu     sync.Mutex
	parser *sitter.Parser
}

var _ contract.Extractor = (*Extractor)(nil)

// New 创建抽取器。
func New(opts *Options) *Extractor {
	if opts == nil {
		opts = &Options{}
	}
	mb := opts.MaxBytes
	if mb <= 0 {
		mb = 8 << 20
	}
	p := sitter.NewParser()
	p.SetLanguage(typescript.GetLanguage())
	return &Extractor{ns: opts.Namespace, maxBytes: mb, parser: p}
}

// Extract 解析片段并返回外壳内部文本与顶层声明清单。
// 约束：顶层恰好一个 declare namespace 块，块外只允许注释；无语法错误。
func (e *Extractor) Extract(ctx context.Context, id contract.FileID, r io.Reader) (contract.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return contract.Fragment{}, err
	}
	content, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return contract.Fragment{}, err
	}
	if int64(len(content)) > e.maxBytes {
		return contract.Fragment{}, fmt.Errorf("%w: %s exceeds %d bytes", contract.ErrFragmentInvalid, id, e.maxBytes)
	}

	e.mu.Lock()
	tree, err := e.parser.ParseCtx(ctx, nil, content)
	e.mu.Unlock()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contract.Fragment{}, ctxErr
		}
		return contract.Fragment{}, fmt.Errorf("%w: %s: %v", contract.ErrFragmentInvalid, id, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		if bad := firstError(root); bad != nil {
			pt := bad.StartPoint()
			return contract.Fragment{}, fmt.Errorf("%w: %s:%d:%d: syntax error", contract.ErrFragmentInvalid, id, pt.Row+1, pt.Column+1)
		}
		return contract.Fragment{}, fmt.Errorf("%w: %s: syntax error", contract.ErrFragmentInvalid, id)
	}

	var wrapper, module *sitter.Node
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		m := namespaceOf(child)
		if m == nil {
			pt := child.StartPoint()
			return contract.Fragment{}, fmt.Errorf("%w: %s:%d:%d: unexpected top-level %s", contract.ErrFragmentInvalid, id, pt.Row+1, pt.Column+1, child.Type())
		}
		if wrapper != nil {
			pt := child.StartPoint()
			return contract.Fragment{}, fmt.Errorf("%w: %s:%d:%d: more than one namespace block", contract.ErrFragmentInvalid, id, pt.Row+1, pt.Column+1)
		}
		wrapper, module = child, m
	}
	if wrapper == nil {
		return contract.Fragment{}, fmt.Errorf("%w: %s: no declare namespace block", contract.ErrFragmentInvalid, id)
	}

	name := strings.TrimSpace(module.ChildByFieldName("name").Content(content))
	if e.ns != "" && name != e.ns {
		return contract.Fragment{}, fmt.Errorf("%w: %s declares %q, want %q", contract.ErrNamespaceMismatch, id, name, e.ns)
	}
	body := module.ChildByFieldName("body")
	if body == nil || body.EndByte()-body.StartByte() < 2 {
		return contract.Fragment{}, fmt.Errorf("%w: %s: namespace %s has no body", contract.ErrFragmentInvalid, id, name)
	}
	inner := content[body.StartByte()+1 : body.EndByte()-1]

	parts := make([]string, 0, 3)
	for _, p := range [][]byte{content[:wrapper.StartByte()], inner, content[wrapper.EndByte():]} {
		if s := string(bytes.TrimSpace(p)); s != "" {
			parts = append(parts, s)
		}
	}

	var decls []contract.Decl
	for i := 0; i < int(body.NamedChildCount()); i++ {
		decls = appendDecls(decls, body.NamedChild(i), content)
	}

	return contract.Fragment{
		FileID:    id,
		Namespace: name,
		Body:      strings.Join(parts, "\n"),
		Decls:     decls,
	}, nil
}

// namespaceOf 返回顶层节点中的 namespace 声明；非 `declare namespace` 形态返回 nil。
func namespaceOf(n *sitter.Node) *sitter.Node {
	if n.Type() != "ambient_declaration" {
		return nil
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "internal_module" || c.Type() == "module" {
			if c.ChildByFieldName("name") == nil {
				return nil
			}
			return c
		}
		// 部分语法版本将 namespace 包在表达式语句中
		if c.Type() == "expression_statement" && c.NamedChildCount() == 1 && c.NamedChild(0).Type() == "internal_module" {
			return c.NamedChild(0)
		}
	}
	return nil
}

// appendDecls 记录命名空间成员（不深入嵌套命名空间内部）。
func appendDecls(out []contract.Decl, n *sitter.Node, content []byte) []contract.Decl {
	line := int(n.StartPoint().Row) + 1
	named := func(kind contract.DeclKind) []contract.Decl {
		if nn := n.ChildByFieldName("name"); nn != nil {
			return append(out, contract.Decl{Name: nn.Content(content), Kind: kind, Line: line})
		}
		return out
	}
	switch n.Type() {
	case "interface_declaration":
		return named(contract.KindInterface)
	case "type_alias_declaration":
		return named(contract.KindType)
	case "enum_declaration":
		return named(contract.KindEnum)
	case "class_declaration", "abstract_class_declaration":
		return named(contract.KindClass)
	case "function_signature", "function_declaration", "generator_function_declaration":
		return named(contract.KindFunction)
	case "internal_module", "module":
		return named(contract.KindNamespace)
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.Type() != "variable_declarator" {
				continue
			}
			if nn := c.ChildByFieldName("name"); nn != nil && nn.Type() == "identifier" {
				out = append(out, contract.Decl{Name: nn.Content(content), Kind: contract.KindVariable, Line: int(c.StartPoint().Row) + 1})
			}
		}
		return out
	case "export_statement":
		if d := n.ChildByFieldName("declaration"); d != nil {
			return appendDecls(out, d, content)
		}
		return out
	case "ambient_declaration", "expression_statement":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			out = appendDecls(out, n.NamedChild(i), content)
		}
		return out
	default:
		return out
	}
}

// firstError 深度优先查找第一个 ERROR 或 MISSING 节点。
func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil || !(c.HasError() || c.IsMissing()) {
			continue
		}
		if bad := firstError(c); bad != nil {
			return bad
		}
	}
	return nil
}
