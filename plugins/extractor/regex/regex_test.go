package regex

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtsmerge/pkg/contract"
)

func TestExtractLegacy(t *testing.T) {
	src := "declare namespace KuaiShouWebMinigame {\n    interface Foo {\n        a: string;\n    }\n    function bar(): void;\n}\n\n"
	f, err := New(&Options{Namespace: "KuaiShouWebMinigame"}).Extract(context.Background(), "a.d.ts", strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "interface Foo {\n        a: string;\n    }\n    function bar(): void;", f.Body)
	assert.Equal(t, []contract.Decl{
		{Name: "Foo", Kind: contract.KindInterface, Line: 2},
		{Name: "bar", Kind: contract.KindFunction, Line: 5},
	}, f.Decls)
}

// TestExtractLegacyTrailing 末尾多余内容时仅删除最后一个右括号（兼容旧行为）
func TestExtractLegacyTrailing(t *testing.T) {
	src := "declare namespace N {\n  interface A {}\n}\ninterface Stray {}\n"
	f, err := New(&Options{Namespace: "N"}).Extract(context.Background(), "a.d.ts", strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "interface A {}\n}\ninterface Stray {", f.Body)
}

// TestExtractLegacyOtherNamespace 不匹配的命名空间原样保留
func TestExtractLegacyOtherNamespace(t *testing.T) {
	src := "declare namespace Other {\n  type T = string;\n}"
	f, err := New(&Options{Namespace: "N"}).Extract(context.Background(), "a.d.ts", strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, "declare namespace Other {\n  type T = string;", f.Body)
}

// TestExtractAnyNamespace 未配置命名空间时自动识别
func TestExtractAnyNamespace(t *testing.T) {
	f, err := New(nil).Extract(context.Background(), "a.d.ts", strings.NewReader("declare namespace A.B {\n  const x: number;\n}"))
	require.NoError(t, err)
	assert.Equal(t, "A.B", f.Namespace)
	assert.Equal(t, "const x: number;", f.Body)

	_, err = New(nil).Extract(context.Background(), "b.d.ts", strings.NewReader("interface A {}"))
	assert.ErrorIs(t, err, contract.ErrFragmentInvalid)
}
