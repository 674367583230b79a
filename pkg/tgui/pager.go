package tgui

import "fmt"

// Page describes one page of a list. Index is 0-based.
type Page struct {
	Index, Size   int
	From, To      int // items[From:To]
	Total, Pages  int
	HasPrev       bool
	HasNext       bool
}

// Paginate clamps index into range and computes the bounds of that page.
func Paginate(total, index, size int) Page {
	if size <= 0 {
		size = 10
	}
	pages := max(1, (total+size-1)/size)
	index = min(max(index, 0), pages-1)
	from := min(index*size, total)
	to := min(from+size, total)
	return Page{
		Index:   index,
		Size:    size,
		From:    from,
		To:      to,
		Total:   total,
		Pages:   pages,
		HasPrev: index > 0,
		HasNext: to < total,
	}
}

// Label renders "page 2/3 • 11-20 of 25".
func (p Page) Label() string {
	if p.Total == 0 {
		return "page 1/1"
	}
	return fmt.Sprintf("page %d/%d • %d-%d of %d", p.Index+1, p.Pages, p.From+1, p.To, p.Total)
}
