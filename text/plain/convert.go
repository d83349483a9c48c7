/*
Copyright 2023 - 2026 Dima Krasner

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package plain converts post content between HTML and plain text.
package plain

import (
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/dimkr/tusk/ap"
	"github.com/dimkr/tusk/data"
	tokenizer "golang.org/x/net/html"
)

var (
	urlRegex                = regexp.MustCompile(`\bhttps?:\/\/\S+\b`)
	pDelim                  = regexp.MustCompile(`([^\n])\n\n+([^\n])`)
	mentionRegex            = regexp.MustCompile(`\B@(\w+)(?:@(?:(?:\w+\.)+\w+(?::\d{1,5}){0,1})){0,1}\b`)
	multipleLineBreaksRegex = regexp.MustCompile(`\n{3,}`)
)

func isMention(class string) bool {
	for _, c := range strings.Fields(class) {
		if c == "mention" {
			return true
		}
	}
	return false
}

func fromHTML(text string) (string, []string, error) {
	var links data.OrderedMap[string, struct{}]
	var b strings.Builder

	tok := tokenizer.NewTokenizer(strings.NewReader(text))

	var openTags []string
	invisibleDepth := 0
	ellipsisDepth := 0
	inLink := false
	for {
		tt := tok.Next()
		switch tt {
		case tokenizer.ErrorToken:
			err := tok.Err()

			if errors.Is(err, io.EOF) {
				return strings.TrimRight(multipleLineBreaksRegex.ReplaceAllLiteralString(b.String(), "\n\n"), " \n\r\t"), links.Keys(), nil
			}

			return "", nil, err

		case tokenizer.TextToken:
			if invisibleDepth == 0 {
				b.Write(tok.Text())
			}

		case tokenizer.EndTagToken:
			tagBytes, _ := tok.TagName()
			tag := string(tagBytes)

			if len(openTags) == 0 || tag != openTags[len(openTags)-1] {
				return "", nil, fmt.Errorf("tag not opened: %s", tag)
			}
			openTags = openTags[:len(openTags)-1]

			switch {
			case tag == "p" || tag == "blockquote" || (len(tag) == 2 && tag[0] == 'h' && tag[1] > '0' && tag[1] <= '9'):
				b.WriteString("\n\n")
				continue

			case tag == "li":
				b.WriteByte('\n')
				continue

			case tag == "a":
				inLink = false
			}

			if len(openTags)+1 == ellipsisDepth {
				if invisibleDepth == 0 {
					b.WriteRune('…')
				}

				ellipsisDepth = 0
			}

			if len(openTags)+1 == invisibleDepth {
				invisibleDepth = 0
			}

		case tokenizer.StartTagToken, tokenizer.SelfClosingTagToken:
			tagBytes, hasAttrs := tok.TagName()
			tag := string(tagBytes)

			if tag == "br" {
				b.WriteByte('\n')
				continue
			}

			if tt == tokenizer.StartTagToken {
				openTags = append(openTags, tag)
			}

			if tag == "li" {
				b.WriteString("* ")
			}

			var class, href string
			for hasAttrs {
				var attrBytes, value []byte
				attrBytes, value, hasAttrs = tok.TagAttr()

				switch string(attrBytes) {
				case "class":
					class = string(value)
				case "href":
					href = string(value)
				}
			}

			if tt == tokenizer.StartTagToken && tag == "span" {
				switch class {
				case "invisible":
					invisibleDepth = len(openTags)
				case "ellipsis":
					ellipsisDepth = len(openTags)
				}
			}

			if tag == "a" {
				if inLink {
					return "", nil, errors.New("links cannot be nested")
				}

				inLink = true

				if href != "" && !isMention(class) {
					links.Store(href, struct{}{})
				}
			}
		}
	}
}

// FromHTML converts HTML to plain text and extracts links, excluding mentions.
//
// If text is not valid HTML, it is returned as-is.
func FromHTML(text string) (string, []string) {
	plain, links, err := fromHTML(text)
	if err != nil {
		slog.Debug("Failed to convert post", "error", err)
		return text, nil
	}

	return plain, links
}

// ToHTML converts plain text to HTML, turning URLs into links and mentions into h-card links.
func ToHTML(text string, mentions []*ap.Link) string {
	if text == "" {
		return ""
	}

	text = html.EscapeString(text)

	var b strings.Builder

	for {
		loc := urlRegex.FindStringIndex(text)
		if loc == nil {
			break
		}
		b.WriteString(text[:loc[0]])
		fmt.Fprintf(&b, `<a href="%s" target="_blank" rel="nofollow noopener noreferrer">%s</a>`, text[loc[0]:loc[1]], text[loc[0]:loc[1]])
		text = text[loc[1]:]
	}
	b.WriteString(text)
	text = b.String()

	if len(mentions) > 0 {
		hrefs := make(map[string]string, len(mentions))
		for _, m := range mentions {
			hrefs[m.Name] = m.Href
		}

		text = mentionRegex.ReplaceAllStringFunc(text, func(mention string) string {
			href, ok := hrefs[mention]
			if !ok {
				return mention
			}
			return fmt.Sprintf(`<span class="h-card" translate="no"><a href="%s" class="u-url mention">%s</a></span>`, href, mention)
		})
	}

	text = pDelim.ReplaceAllString(text, "$1</p><p>$2")
	text = strings.ReplaceAll(text, "\n", "<br/>")
	return "<p>" + text + "</p>"
}
