// Command docsearch serves and queries a documentation site's search index.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/cmd/docsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
