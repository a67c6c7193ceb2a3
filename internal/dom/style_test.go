package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func findByID(t *testing.T, doc *Document, id string) *html.Node {
	t.Helper()
	nodes := doc.Find("#" + id)
	require.Len(t, nodes, 1)
	return nodes[0]
}

func TestDisplayOf(t *testing.T) {
	doc, err := LoadString(`<html><body>
		<div id="plain">x</div>
		<span id="sp">x</span>
		<div id="styled" style="display: inline">x</div>
		<div id="none" style="display:none">x</div>
		<p id="para" style="display:inline">x</p>
		<span id="blocked" style="display: block">x</span>
	</body></html>`, "https://example.com/")
	require.NoError(t, err)

	tests := []struct {
		name string
		id   string
		want Display
	}{
		{"div defaults to block", "plain", DisplayBlock},
		{"span defaults to inline", "sp", DisplayInline},
		{"style overrides div", "styled", DisplayInline},
		{"display none", "none", DisplayNone},
		{"semantic tag ignores style", "para", DisplayBlock},
		{"style overrides span", "blocked", DisplayBlock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayOf(findByID(t, doc, tt.id)))
		})
	}
}

func TestIsHidden(t *testing.T) {
	doc, err := LoadString(`<html><body>
		<div id="vis">x</div>
		<div id="disp" style="display:none">x</div>
		<div id="attr" hidden>x</div>
		<div id="aria" aria-hidden="true">x</div>
		<div id="ariaoff" aria-hidden="false">x</div>
	</body></html>`, "https://example.com/")
	require.NoError(t, err)

	assert.False(t, IsHidden(findByID(t, doc, "vis")))
	assert.True(t, IsHidden(findByID(t, doc, "disp")))
	assert.True(t, IsHidden(findByID(t, doc, "attr")))
	assert.True(t, IsHidden(findByID(t, doc, "aria")))
	assert.False(t, IsHidden(findByID(t, doc, "ariaoff")))
}

func TestHasClass(t *testing.T) {
	doc, err := LoadString(`<html><body>
		<div id="multi" class="foo bar baz">x</div>
	</body></html>`, "https://example.com/")
	require.NoError(t, err)

	n := findByID(t, doc, "multi")
	assert.True(t, HasClass(n, "bar"))
	assert.False(t, HasClass(n, "ba"))
	assert.False(t, HasClass(n, "qux"))
}
