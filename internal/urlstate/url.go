// Package urlstate keeps the page address in sync with the search state.
package urlstate

import (
	"fmt"
	"net/url"
	"strings"
)

// Params is an insertion-ordered list of query parameters. Values are kept
// in their encoded form exactly as they appear in the URL. Repeated keys and
// keys without "=" survive a Parse/String round trip.
type Params struct {
	entries []param
}

type param struct {
	key   string
	value string
	bare  bool
}

func NewParams() *Params {
	return &Params{}
}

func (p *Params) index(key string) int {
	for i, e := range p.entries {
		if e.key == key {
			return i
		}
	}
	return -1
}

// Get returns the first value stored for key.
func (p *Params) Get(key string) (string, bool) {
	if i := p.index(key); i >= 0 {
		return p.entries[i].value, true
	}
	return "", false
}

func (p *Params) Has(key string) bool {
	return p.index(key) >= 0
}

// Set stores an already encoded value. An existing key keeps the position of
// its first occurrence and loses any repeats.
func (p *Params) Set(key, value string) {
	i := p.index(key)
	if i < 0 {
		p.entries = append(p.entries, param{key: key, value: value})
		return
	}
	p.entries[i] = param{key: key, value: value}
	p.entries = append(p.entries[:i+1], p.dropKey(p.entries[i+1:], key)...)
}

// Delete removes every occurrence of key.
func (p *Params) Delete(key string) {
	p.entries = p.dropKey(p.entries, key)
}

func (p *Params) dropKey(entries []param, key string) []param {
	out := entries[:0]
	for _, e := range entries {
		if e.key != key {
			out = append(out, e)
		}
	}
	return out
}

// add appends a parsed parameter without merging repeats.
func (p *Params) add(key, value string, bare bool) {
	p.entries = append(p.entries, param{key: key, value: value, bare: bare})
}

// Keys lists the parameter names in order, repeats included.
func (p *Params) Keys() []string {
	keys := make([]string, len(p.entries))
	for i, e := range p.entries {
		keys[i] = e.key
	}
	return keys
}

func (p *Params) Len() int { return len(p.entries) }

// URL is a page location split into the parts the search state touches.
type URL struct {
	Protocol string
	Host     string
	Port     string
	Path     string
	Hash     string
	Params   *Params
}

// Parse decomposes an absolute URL. The path always starts with "/".
func Parse(raw string) (*URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing location %q: %w", raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parsing location %q: not an absolute URL", raw)
	}
	path := u.EscapedPath()
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	params := NewParams()
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		params.add(key, value, !found)
	}
	return &URL{
		Protocol: u.Scheme,
		Host:     u.Hostname(),
		Port:     u.Port(),
		Path:     path,
		Hash:     u.EscapedFragment(),
		Params:   params,
	}, nil
}

// String renders the URL with parameters in insertion order.
func (u *URL) String() string {
	var sb strings.Builder
	sb.WriteString(u.Protocol)
	sb.WriteString("://")
	sb.WriteString(u.Host)
	if u.Port != "" {
		sb.WriteString(":")
		sb.WriteString(u.Port)
	}
	sb.WriteString(u.Path)
	if u.Params != nil {
		for i, e := range u.Params.entries {
			if i == 0 {
				sb.WriteString("?")
			} else {
				sb.WriteString("&")
			}
			sb.WriteString(e.key)
			if !e.bare {
				sb.WriteString("=")
				sb.WriteString(e.value)
			}
		}
	}
	if u.Hash != "" {
		sb.WriteString("#")
		sb.WriteString(u.Hash)
	}
	return sb.String()
}
