package teaser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMake(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		tokens []string
		window Window
		want   string
	}{
		{
			name:   "empty body",
			body:   "",
			tokens: []string{"x"},
			window: DefaultWindow,
			want:   "",
		},
		{
			name:   "no match anchors at start",
			body:   "short body",
			tokens: []string{"zzz"},
			window: DefaultWindow,
			want:   "short body",
		},
		{
			name:   "highlights every occurrence",
			body:   "go build and go test",
			tokens: []string{"go"},
			window: DefaultWindow,
			want:   "<em>go</em> build and <em>go</em> test",
		},
		{
			name:   "first token in query order picks anchor",
			body:   "alpha beta gamma delta",
			tokens: []string{"delta", "alpha"},
			window: Window{Before: 2, After: 5},
			want:   "…a <em>delta</em>",
		},
		{
			name:   "window truncated both sides",
			body:   "0123456789abcdefghij",
			tokens: []string{"a"},
			window: Window{Before: 3, After: 4},
			want:   "…789<em>a</em>bcd…",
		},
		{
			name:   "longer token wins over substring",
			body:   "install the installer",
			tokens: []string{"in", "installer"},
			window: DefaultWindow,
			want:   "<em>in</em>stall the <em>installer</em>",
		},
		{
			name:   "body is escaped",
			body:   `a <b> & "c" 'd'`,
			tokens: []string{"b"},
			window: DefaultWindow,
			want:   "a &lt;<em>b</em>&gt; &amp; &#34;c&#34; &#39;d&#39;",
		},
		{
			name:   "token containing markup characters",
			body:   "use a<b here",
			tokens: []string{"a<b"},
			window: DefaultWindow,
			want:   "use <em>a&lt;b</em> here",
		},
		{
			name:   "token never matches inserted markup",
			body:   "em dash em",
			tokens: []string{"em", "m"},
			window: DefaultWindow,
			want:   "<em>em</em> dash <em>em</em>",
		},
		{
			name:   "windows count characters",
			body:   "搜索引擎可以快速找到文档内容",
			tokens: []string{"找到"},
			window: Window{Before: 2, After: 4},
			want:   "…快速<em>找到</em>文档…",
		},
		{
			name:   "matching ignores case and keeps the body spelling",
			body:   "Install steps are covered in the install guide.",
			tokens: []string{"install"},
			window: DefaultWindow,
			want:   "<em>Install</em> steps are covered in the <em>install</em> guide.",
		},
		{
			name:   "anchor found case-insensitively",
			body:   "some preamble text then Config here",
			tokens: []string{"config"},
			window: Window{Before: 5, After: 6},
			want:   "…then <em>Config</em>…",
		},
		{
			name:   "empty and duplicate tokens ignored",
			body:   "tea for two",
			tokens: []string{"", "two", "two"},
			window: DefaultWindow,
			want:   "tea for <em>two</em>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Make(tt.body, tt.tokens, tt.window))
		})
	}
}

func TestMake_NeverLeaksUnescapedMarkup(t *testing.T) {
	body := `<script>alert("x&y")</script> & <img src=x onerror=alert(1)>`
	for _, tokens := range [][]string{nil, {"script"}, {"<", "&"}, {"alert", "x"}} {
		got := Make(body, tokens, DefaultWindow)
		stripped := strings.NewReplacer("<em>", "", "</em>", "").Replace(got)
		assert.NotContains(t, stripped, "<")
		assert.NotContains(t, stripped, ">")
		assert.NotContains(t, strings.NewReplacer("&lt;", "", "&gt;", "", "&amp;", "", "&#34;", "", "&#39;", "").Replace(stripped), "&")
	}
}

func TestFormatResult(t *testing.T) {
	got := FormatResult("../", Item{
		URL:         "guide/install.html#steps",
		Breadcrumbs: "Guide » Install",
		Teaser:      "<em>install</em> it",
	}, []string{"install", "指南"}, 3)

	assert.Equal(t,
		`<a href="../guide/install.html?highlight=install%20%E6%8C%87%E5%8D%97#steps" aria-details="teaser_3">Guide » Install</a>`+
			`<span class="teaser" id="teaser_3" aria-label="Search Result Teaser"><em>install</em> it</span>`,
		got)
}

func TestFormatResult_NoFragment(t *testing.T) {
	got := FormatResult("/", Item{URL: "faq.html", Breadcrumbs: "<FAQ>"}, []string{"it's"}, 1)

	assert.Contains(t, got, `href="/faq.html?highlight=it%27s#"`)
	assert.Contains(t, got, ">&lt;FAQ&gt;</a>")
}

func TestFormatMetric(t *testing.T) {
	assert.Equal(t, "未找到: 'foo'", FormatMetric(0, "foo"))
	assert.Equal(t, "1 条结果: 'foo'", FormatMetric(1, "foo"))
	assert.Equal(t, "12 条结果: 'foo bar'", FormatMetric(12, "foo bar"))
}

func TestResultHref(t *testing.T) {
	assert.Equal(t, "/a.html?highlight=x%20y#b", ResultHref("/", "a.html#b", []string{"x", "y"}))
	assert.Equal(t, "a.html?highlight=#", ResultHref("", "a.html", nil))
}
