/*
Copyright 2026 Dima Krasner

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

package fed

import (
	"context"
	"iter"
	"log/slog"

	"github.com/dimkr/tusk/ap"
)

// Paginator is a lazy, single-pass sequence over the items of a collection.
//
// Pages are fetched only when all items of the previous page were consumed. A page is never
// fetched twice, and a page that cannot be fetched ends the sequence.
type Paginator struct {
	ctx      context.Context
	resolver *Resolver

	items   []ap.Ref[ap.Object]
	next    ap.Ref[ap.Object]
	total   *int64
	visited map[string]struct{}
	pages   int
	used    bool
}

// Paginate returns a [Paginator] over a collection or a collection page.
//
// If the collection has inlined items, the sequence starts with them and continues with the next
// page, if any. Otherwise, it starts with the first page.
func Paginate(ctx context.Context, r *Resolver, c *ap.Collection) *Paginator {
	p := &Paginator{
		ctx:      ctx,
		resolver: r,
		total:    c.TotalItems,
		visited:  map[string]struct{}{},
	}

	if c.ID != "" {
		p.visited[c.ID] = struct{}{}
	}

	if c.HasItems() {
		p.items = c.AllItems()
		p.next = c.Next
	} else {
		p.next = c.First
	}

	return p
}

// SizeHint returns the number of buffered items and the declared total, if the collection has one.
func (p *Paginator) SizeHint() (int, int, bool) {
	if p.total == nil {
		return len(p.items), 0, false
	}

	return len(p.items), int(max(*p.total, 0)), true
}

// All returns the sequence. Items are returned in the order they appear in each page, and pages are
// visited in order.
//
// The sequence can be iterated once: consumed items are not returned again.
func (p *Paginator) All() iter.Seq[ap.Ref[ap.Object]] {
	return func(yield func(ap.Ref[ap.Object]) bool) {
		if p.used {
			return
		}
		p.used = true

		for {
			for len(p.items) > 0 {
				item := p.items[0]
				p.items = p.items[1:]

				if !yield(item) {
					return
				}
			}

			if !p.fetchNext() {
				return
			}
		}
	}
}

func (p *Paginator) fetchNext() bool {
	for !p.next.IsZero() {
		ref := p.next
		p.next = ap.Ref[ap.Object]{}

		page, ok := p.page(ref)
		if !ok {
			return false
		}

		p.items = page.AllItems()
		p.next = page.Next

		if len(p.items) > 0 {
			return true
		}
	}

	return false
}

func (p *Paginator) page(ref ap.Ref[ap.Object]) (*ap.Collection, bool) {
	v, ok := ref.Value()
	if !ok {
		return p.fetch(ref.ID(), true)
	}

	switch o := v.(type) {
	case *ap.Collection:
		if o.ID != "" {
			if _, dup := p.visited[o.ID]; dup {
				slog.DebugContext(p.ctx, "Skipping visited page", "page", o.ID)
				return nil, false
			}
			p.visited[o.ID] = struct{}{}
		}
		return o, true

	case *ap.Link:
		return p.fetch(o.Href, false)

	default:
		slog.InfoContext(p.ctx, "Page is not a collection", "page", o.Common().ID, "type", o.Common().Type)
		return nil, false
	}
}

func (p *Paginator) fetch(id string, followLink bool) (*ap.Collection, bool) {
	if id == "" {
		return nil, false
	}

	if _, dup := p.visited[id]; dup {
		slog.DebugContext(p.ctx, "Skipping visited page", "page", id)
		return nil, false
	}
	p.visited[id] = struct{}{}

	if p.pages >= p.resolver.Config.MaxCollectionPages {
		slog.InfoContext(p.ctx, "Reached page limit", "page", id, "pages", p.pages)
		return nil, false
	}
	p.pages++

	o, err := Fetch[ap.Object](p.ctx, p.resolver, id)
	if err != nil {
		slog.InfoContext(p.ctx, "Failed to fetch page", "page", id, "error", err)
		return nil, false
	}

	switch page := o.(type) {
	case *ap.Collection:
		return page, true

	case *ap.Link:
		if followLink {
			return p.fetch(page.Href, false)
		}
	}

	slog.InfoContext(p.ctx, "Page is not a collection", "page", id, "type", o.Common().Type)
	return nil, false
}
