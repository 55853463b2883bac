package library

import "strings"

// SafeFilename 把原始文件名清洗成适合放进包内路径的形式：
// 路径分隔符和不可见字符替换为下划线，空名退化为 "untitled"。
func SafeFilename(name string) string {
	if name == "" {
		return "untitled"
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteByte('_')
		case r < 0x20:
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" || out == "." || out == ".." {
		return "untitled"
	}
	return out
}
