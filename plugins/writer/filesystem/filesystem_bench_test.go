package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"dtsmerge/pkg/contract"
)

// BenchmarkWrite 不同输出尺寸下的原子写入性能。
func BenchmarkWrite(b *testing.B) {
	for _, sz := range []int{16 * 1024, 1024 * 1024} {
		b.Run(fmt.Sprintf("size=%d", sz), func(b *testing.B) {
			data := bytes.Repeat([]byte("interface A {}\n"), sz/15)
			w, err := New(&Options{OutputDir: b.TempDir()})
			if err != nil {
				b.Fatalf("new: %v", err)
			}
			id := contract.ArtifactID("lib.ks.api.d.ts")
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := w.Write(ctx, id, bytes.NewReader(data)); err != nil {
					b.Fatalf("write: %v", err)
				}
			}
		})
	}
}
