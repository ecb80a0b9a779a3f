package contract

import (
	"fmt"
	"regexp"
	"strings"
)

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)

// ValidNamespace 判断命名空间名是否为合法的（可带点号的）标识符。
func ValidNamespace(ns string) bool { return identRe.MatchString(ns) }

// ValidateFragment 校验抽取结果的最小不变量（纯函数，无 I/O）：
// - FileID 非空；
// - Namespace 与期望一致（期望为空时跳过）；
// - Decl 名称非空、种类已知、行号非负。
func ValidateFragment(f Fragment, wantNS string) error {
	if strings.TrimSpace(string(f.FileID)) == "" {
		return fmt.Errorf("%w: empty file id", ErrInvariantViolation)
	}
	if wantNS != "" && f.Namespace != wantNS {
		return fmt.Errorf("%w: %s declares %q, want %q", ErrNamespaceMismatch, f.FileID, f.Namespace, wantNS)
	}
	for i, d := range f.Decls {
		if d.Name == "" {
			return fmt.Errorf("%w: %s decl[%d] has empty name", ErrInvariantViolation, f.FileID, i)
		}
		if !knownKind(d.Kind) {
			return fmt.Errorf("%w: %s decl %q has unknown kind %q", ErrInvariantViolation, f.FileID, d.Name, d.Kind)
		}
		if d.Line < 0 {
			return fmt.Errorf("%w: %s decl %q has negative line", ErrInvariantViolation, f.FileID, d.Name)
		}
	}
	return nil
}

// CloneFragment 深拷贝片段，调用方修改副本不影响缓存中的原件。
func CloneFragment(f Fragment) Fragment {
	out := f
	out.Body = cloneString(f.Body)
	if f.Decls != nil {
		out.Decls = make([]Decl, len(f.Decls))
		copy(out.Decls, f.Decls)
	}
	return out
}

func knownKind(k DeclKind) bool {
	switch k {
	case KindInterface, KindType, KindEnum, KindClass, KindFunction, KindNamespace, KindVariable:
		return true
	default:
		return false
	}
}

func cloneString(s string) string {
	if s == "" {
		return ""
	}
	return strings.Clone(s)
}
