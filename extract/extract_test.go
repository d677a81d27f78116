package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"tagged fence", "```python\nprint(\"hello\")\n```", `print("hello")`},
		{"surrounding prose", "Here you go:\n\n```python\nx = 1\nprint(x)\n```\n\nEnjoy!", "x = 1\nprint(x)"},
		{"first tagged block wins", "```python\na = 1\n```\n```python\nb = 2\n```", "a = 1"},
		{"alias", "```py\nprint(2)\n```", "print(2)"},
		{"upper case tag", "```Python\nprint(3)\n```", "print(3)"},
		{"skips other languages", "```bash\nls\n```\n```python\nprint(4)\n```", "print(4)"},
		{"tilde fence", "~~~python\nprint(5)\n~~~", "print(5)"},
		{"unclosed fence", "```python\nprint(6)\n", "print(6)"},
		{"inline fence", "Sure! ```python\nprint(7)```", "print(7)"},
		{"raw code", "  print(8)\n", "print(8)"},
		{"untagged fence stays raw", "```\nprint(9)\n```", "```\nprint(9)\n```"},
		{"empty", "   \n", ""},
		{"empty block", "```python\n```", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.raw, "python"))
		})
	}
}

func TestCode_RoundTrip(t *testing.T) {
	for _, body := range []string{"print(1)", "def f(x):\n    return x * 2\n\nprint(f(3))", "  indented = True  "} {
		assert.Equal(t, strings.TrimSpace(body), Code("```python\n"+body+"\n```", "python"), body)
	}
}

func TestBlocks(t *testing.T) {
	blocks := Blocks("text\n```go\nfunc main() {}\n```\n\n```\nplain\n```\n")
	if assert.Len(t, blocks, 2) {
		assert.Equal(t, Block{Lang: "go", Code: "func main() {}\n"}, blocks[0])
		assert.Equal(t, Block{Lang: "", Code: "plain\n"}, blocks[1])
	}
}
