package benchmark

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "Run the install script and follow the prompts",
	"mixed": `安装之前请先阅读配置文件说明。The configuration file lives next to
        the binary and controls the search index path, teaser windows and
        result limits. 搜索结果按标题和正文中的词频排序。`,
	"long": strings.Repeat(`Documentation sites ship a prebuilt search index with
        every page. The browser loads it lazily the first time the search panel
        opens, tokenizes the query and scores every document by how often the
        query tokens appear in its title and body. 标题中的匹配权重更高。`, 20),
}

func BenchmarkFallbackTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_, _ = tokenizer.Fallback{}.Tokenize(text)
			}
		})
	}
}

func BenchmarkActiveTokenizeParallel(b *testing.B) {
	active := tokenizer.NewActive(nil)
	text := sampleTexts["mixed"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = active.Tokenize(text)
		}
	})
}
