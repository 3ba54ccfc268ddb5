package js_scanner

import "testing"

func TestHasExports(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   bool
	}{
		{"no exports", "const x = 1;\nconsole.log(x);", false},
		{"top level export", "export const x = 1;", true},
		{"export in line comment", "// export const x = 1;\nconst y = 2;", false},
		{"export in block comment", "/* export const x = 1; */\nconst y = 2;", false},
		{"export default", "export default function () {}", true},
		{"identifier containing export", "const reexporter = 1;", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := HasExports([]byte(c.source)); got != c.want {
				t.Errorf("HasExports(%q) = %v, want %v", c.source, got, c.want)
			}
		})
	}
}
