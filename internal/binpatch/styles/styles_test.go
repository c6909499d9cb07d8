package styles

import (
	"strings"
	"testing"
)

func TestRenderMarkdownKeepsContent(t *testing.T) {
	out := RenderMarkdown("# Report\n\n`0x00000004` patched\n", 80)
	for _, want := range []string{"Report", "0x00000004", "patched"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered output missing %q:\n%s", want, out)
		}
	}
}

func TestGetMarkdownRenderer(t *testing.T) {
	if GetMarkdownRenderer(40) == nil {
		t.Fatal("GetMarkdownRenderer returned nil")
	}
}
