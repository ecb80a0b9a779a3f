package contract

// FileID: 片段文件的逻辑标识（通常为路径，需规范化，跨平台一致）。
type FileID string

// DeclKind: 命名空间内声明成员的种类。
type DeclKind string

const (
	KindInterface DeclKind = "interface"
	KindType      DeclKind = "type"
	KindEnum      DeclKind = "enum"
	KindClass     DeclKind = "class"
	KindFunction  DeclKind = "function"
	KindNamespace DeclKind = "namespace"
	KindVariable  DeclKind = "variable"
)

// Decl: 片段内声明的一个具名成员。
// Line 为在原片段文件中的行号（1 起）；未知时为 0。
type Decl struct {
	Name string
	Kind DeclKind
	Line int
}

// Fragment: 剥离命名空间外壳后的单个声明片段。
// 约束：
//   - Body 为外壳内部的原始文本（仅做首尾空白裁剪），不做重排或改写；
//   - Decls 按出现顺序排列，仅用于冲突检测与清单展示；
//   - 片段之间相互独立，无执行顺序依赖。
type Fragment struct {
	FileID    FileID
	Namespace string
	Body      string
	Decls     []Decl
}

// MergeStats: 合并结果的最小统计。
type MergeStats struct {
	Fragments int
	Decls     int
	Bytes     int64
}
