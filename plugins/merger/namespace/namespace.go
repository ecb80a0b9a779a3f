package namespace

import (
	"context"
	"fmt"
	"io"
	"strings"

	"dtsmerge/pkg/contract"
)

// 默认值与既有发布物保持一致。
const (
	DefaultHeaderComment = "KuaiShouWeb的变量命名空间"
	DefaultGlobalName    = "ks"
	DefaultGlobalType    = "KS"
	DefaultGlobalComment = "将KuaiShouWeb的ks变量声明为全局变量"
)

// Global 描述追加在命名空间之后的全局变量声明：
// `declare const <Name>: <ns>.<Type>;`
type Global struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Comment string `yaml:"comment"`
}

// Options 为合并器配置。指针字段为 nil 时取默认值；显式空字符串表示省略。
type Options struct {
	Namespace     string  `yaml:"-"`
	HeaderComment *string `yaml:"header_comment"`
	Global        *Global `yaml:"global"`
	// NoGlobal 为真时不输出全局变量声明。
	NoGlobal bool `yaml:"no_global"`
	// AllowMergeKinds: 允许跨片段同名（TypeScript 声明合并）的成员种类，默认空（严格）。
	AllowMergeKinds []string `yaml:"allow_merge_kinds"`
}

// Merger 将片段正文按输入顺序拼接，包裹进单一命名空间并追加全局声明。
// 纯函数语义：相同输入产出逐字节相同的文档。
type Merger struct {
	ns     string
	header string
	global *Global
	allow  map[contract.DeclKind]struct{}
}

var _ contract.Merger = (*Merger)(nil)

// New 校验并创建合并器。
func New(opts *Options) (*Merger, error) {
	if opts == nil {
		opts = &Options{}
	}
	if !contract.ValidNamespace(opts.Namespace) {
		return nil, fmt.Errorf("merger: invalid namespace %q", opts.Namespace)
	}
	m := &Merger{ns: opts.Namespace, header: DefaultHeaderComment, allow: map[contract.DeclKind]struct{}{}}
	if opts.HeaderComment != nil {
		m.header = *opts.HeaderComment
	}
	if !opts.NoGlobal {
		g := Global{Name: DefaultGlobalName, Type: DefaultGlobalType, Comment: DefaultGlobalComment}
		if opts.Global != nil {
			g = *opts.Global
		}
		if !contract.ValidNamespace(g.Name) || strings.Contains(g.Name, ".") {
			return nil, fmt.Errorf("merger: invalid global name %q", g.Name)
		}
		if !contract.ValidNamespace(g.Type) {
			return nil, fmt.Errorf("merger: invalid global type %q", g.Type)
		}
		m.global = &g
	}
	for _, k := range opts.AllowMergeKinds {
		kind := contract.DeclKind(strings.ToLower(strings.TrimSpace(k)))
		switch kind {
		case contract.KindInterface, contract.KindType, contract.KindEnum, contract.KindClass,
			contract.KindFunction, contract.KindNamespace, contract.KindVariable:
			m.allow[kind] = struct{}{}
		default:
			return nil, fmt.Errorf("merger: unknown decl kind %q", k)
		}
	}
	return m, nil
}

type seenDecl struct {
	id   contract.FileID
	decl contract.Decl
}

// Merge 检查同名声明后生成文档。
func (m *Merger) Merge(ctx context.Context, frags []contract.Fragment) (io.Reader, contract.MergeStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, contract.MergeStats{}, err
	}
	seen := make(map[string]seenDecl)
	total := 0
	for _, f := range frags {
		if f.Namespace != "" {
			if err := contract.ValidateFragment(f, m.ns); err != nil {
				return nil, contract.MergeStats{}, err
			}
		}
		for _, d := range f.Decls {
			total++
			prev, dup := seen[d.Name]
			if !dup {
				seen[d.Name] = seenDecl{id: f.FileID, decl: d}
				continue
			}
			if m.mergeable(prev.decl.Kind) && m.mergeable(d.Kind) {
				continue
			}
			return nil, contract.MergeStats{}, fmt.Errorf("%w: %q (%s) in %s:%d and (%s) in %s:%d",
				contract.ErrDuplicateDecl, d.Name, prev.decl.Kind, prev.id, prev.decl.Line, d.Kind, f.FileID, d.Line)
		}
	}

	var b strings.Builder
	if m.header != "" {
		b.WriteString("/** " + m.header + " */\n")
	}
	b.WriteString("declare namespace " + m.ns + " {\n")
	for i, f := range frags {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(f.Body)
	}
	b.WriteString("\n}\n")
	if m.global != nil {
		b.WriteByte('\n')
		if m.global.Comment != "" {
			b.WriteString("/** " + m.global.Comment + " */\n")
		}
		fmt.Fprintf(&b, "declare const %s: %s.%s;\n", m.global.Name, m.ns, m.global.Type)
	}
	doc := b.String()
	return strings.NewReader(doc), contract.MergeStats{Fragments: len(frags), Decls: total, Bytes: int64(len(doc))}, nil
}

func (m *Merger) mergeable(k contract.DeclKind) bool {
	_, ok := m.allow[k]
	return ok
}
