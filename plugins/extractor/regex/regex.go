package regex

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"dtsmerge/pkg/contract"
)

// Options 为兼容模式抽取器的配置。
type Options struct {
	Namespace string `yaml:"-"`
}

// Extractor 以文本替换剥离外壳：删除所有 `declare namespace <ns> {`，
// 再删除末尾一个 `}`，最后裁剪首尾空白。不做语法校验。
type Extractor struct {
	ns     string
	openRe *regexp.Regexp
}

var _ contract.Extractor = (*Extractor)(nil)

var (
	closeRe = regexp.MustCompile(`\}\s*$`)
	declRe  = regexp.MustCompile(`^\s*(?:export\s+)?(?:declare\s+)?(interface|type|enum|class|function|namespace|const|let|var)\s+([A-Za-z_$][A-Za-z0-9_$]*)`)
	nameRe  = regexp.MustCompile(`declare\s+namespace\s+([A-Za-z_$][A-Za-z0-9_$.]*)`)
)

var kindOf = map[string]contract.DeclKind{
	"interface": contract.KindInterface,
	"type":      contract.KindType,
	"enum":      contract.KindEnum,
	"class":     contract.KindClass,
	"function":  contract.KindFunction,
	"namespace": contract.KindNamespace,
	"const":     contract.KindVariable,
	"let":       contract.KindVariable,
	"var":       contract.KindVariable,
}

// New 创建抽取器；Namespace 为空时匹配任意命名空间名。
func New(opts *Options) *Extractor {
	if opts == nil {
		opts = &Options{}
	}
	name := `[A-Za-z_$][A-Za-z0-9_$.]*`
	if opts.Namespace != "" {
		name = regexp.QuoteMeta(opts.Namespace)
	}
	return &Extractor{ns: opts.Namespace, openRe: regexp.MustCompile(`declare namespace ` + name + `\s*\{`)}
}

func (e *Extractor) Extract(ctx context.Context, id contract.FileID, r io.Reader) (contract.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return contract.Fragment{}, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return contract.Fragment{}, err
	}
	src := string(b)
	ns := e.ns
	if ns == "" {
		if m := nameRe.FindStringSubmatch(src); m != nil {
			ns = m[1]
		}
	}
	body := e.openRe.ReplaceAllString(src, "")
	if loc := closeRe.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}
	body = strings.TrimSpace(body)
	if ns == "" {
		return contract.Fragment{}, fmt.Errorf("%w: %s: no declare namespace block", contract.ErrFragmentInvalid, id)
	}
	return contract.Fragment{FileID: id, Namespace: ns, Body: body, Decls: scanDecls(src)}, nil
}

// scanDecls 按行扫描命名空间第一层的成员声明。
// 花括号深度为粗略估计：不识别字符串与注释中的括号。
func scanDecls(src string) []contract.Decl {
	var out []contract.Decl
	depth := 0
	for i, line := range strings.Split(src, "\n") {
		if depth == 1 {
			if m := declRe.FindStringSubmatch(line); m != nil {
				out = append(out, contract.Decl{Name: m[2], Kind: kindOf[m[1]], Line: i + 1})
			}
		}
		depth += strings.Count(line, "{") - strings.Count(line, "}")
		if depth < 0 {
			depth = 0
		}
	}
	return out
}
