// internal/htmlutil/clean_test.go
package htmlutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanHTML(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, "", CleanHTML("   \n "))
	})

	t.Run("StripsScript", func(t *testing.T) {
		out := CleanHTML(`<p>hello</p><script>alert(1)</script>`)
		assert.Contains(t, out, "<p>hello</p>")
		assert.NotContains(t, out, "script")
	})

	t.Run("NbspAndZeroWidth", func(t *testing.T) {
		out := CleanHTML("<p>a&nbsp;b\u200B\uFEFFc</p>")
		assert.Contains(t, out, "a b")
		assert.NotContains(t, out, "\u200B")
		assert.NotContains(t, out, "\uFEFF")
	})

	t.Run("DropsEmptyTags", func(t *testing.T) {
		out := CleanHTML("<p>keep</p><p>  </p><span></span>")
		assert.Contains(t, out, "keep")
		assert.NotContains(t, out, "<span>")
	})

	t.Run("CollapsesBrRuns", func(t *testing.T) {
		out := CleanHTML("<p>a</p><br><br><br><br><p>b</p>")
		assert.NotContains(t, out, "<br><br><br>")
	})
}

func TestCleanMetaDescription(t *testing.T) {
	t.Run("StripsTags", func(t *testing.T) {
		assert.Equal(t, "hello world", CleanMetaDescription("<b>hello</b>   <i>world</i>"))
	})

	t.Run("CapsAt150Runes", func(t *testing.T) {
		long := strings.Repeat("가나다라 ", 60)
		out := CleanMetaDescription(long)
		assert.LessOrEqual(t, len([]rune(out)), 150)
		assert.True(t, strings.HasSuffix(out, "..."))
	})

	t.Run("ShortPassesThrough", func(t *testing.T) {
		assert.Equal(t, "short one", CleanMetaDescription("short one"))
	})
}

func TestToPlainText(t *testing.T) {
	t.Run("BlocksBecomeNewlines", func(t *testing.T) {
		out := ToPlainText("<h1>Title</h1><p>first</p><p>second</p>")
		assert.Contains(t, out, "Title\n")
		assert.Contains(t, out, "first")
		assert.Contains(t, out, "second")
		assert.NotContains(t, out, "<")
	})

	t.Run("ListItemsBecomeBullets", func(t *testing.T) {
		out := ToPlainText("<ul><li>one</li><li>two</li></ul>")
		assert.Contains(t, out, "• one")
		assert.Contains(t, out, "• two")
	})

	t.Run("BrIsNewline", func(t *testing.T) {
		out := ToPlainText("a<br>b")
		assert.Equal(t, "a\nb", out)
	})

	t.Run("SkipsScriptAndStyle", func(t *testing.T) {
		out := ToPlainText("<p>visible</p><style>.x{}</style><script>nope()</script>")
		assert.Equal(t, "visible", out)
	})

	t.Run("DecodesEntities", func(t *testing.T) {
		out := ToPlainText("<p>a &amp; b</p>")
		assert.Equal(t, "a & b", out)
	})

	t.Run("CollapsesNewlineRuns", func(t *testing.T) {
		out := ToPlainText("<div><p>a</p></div><div><p>b</p></div>")
		assert.NotContains(t, out, "\n\n\n")
	})
}
