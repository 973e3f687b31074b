package index

const samplePayload = `{
  "results_options": {"teaser_word_count": 20, "limit_results": 10},
  "doc_urls": ["intro.html#overview", "guide/install.html#steps"],
  "index": {"documentStore": {"docs": {
    "1": {"title": "Guide", "body": "install steps", "breadcrumbs": "Guide » Install"},
    "0": {"title": "Install", "body": "how to install", "breadcrumbs": ""}
  }}}
}`
