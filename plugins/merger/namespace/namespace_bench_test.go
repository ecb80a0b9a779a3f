package namespace

import (
	"context"
	"fmt"
	"io"
	"testing"

	"dtsmerge/pkg/contract"
)

// BenchmarkMerge 基准测试 Merger.Merge，不同片段数量下的表现（含冲突检测）。
func BenchmarkMerge(b *testing.B) {
	sizes := []int{100, 1000, 5000}
	for _, n := range sizes {
		b.Run(fmt.Sprintf("n=%d", n), func(b *testing.B) {
			frags := makeFragments(n)
			m, err := New(&Options{Namespace: "NS"})
			if err != nil {
				b.Fatalf("创建合并器失败: %v", err)
			}
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				r, _, err := m.Merge(ctx, frags)
				if err != nil {
					b.Fatalf("合并失败: %v", err)
				}
				if _, err := io.Copy(io.Discard, r); err != nil {
					b.Fatalf("读取失败: %v", err)
				}
			}
		})
	}
}

func makeFragments(n int) []contract.Fragment {
	frags := make([]contract.Fragment, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Api%05d", i)
		frags[i] = contract.Fragment{
			FileID:    contract.FileID(fmt.Sprintf("types/%s.d.ts", name)),
			Namespace: "NS",
			Body:      "interface " + name + " {\n    id: number;\n}",
			Decls:     []contract.Decl{{Name: name, Kind: contract.KindInterface, Line: 2}},
		}
	}
	return frags
}
