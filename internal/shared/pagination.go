package shared

// Page is a normalised page request.
type Page struct {
	Number int
	Size   int
}

// PagingInfo describes a fetched page using look-ahead paging.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// NewPage clamps number and size. A size outside (0, maxSize] falls back to
// defaultSize or maxSize.
func NewPage(number, size, defaultSize, maxSize int) Page {
	if size <= 0 {
		size = defaultSize
	}
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	if number <= 0 {
		number = 1
	}
	return Page{Number: number, Size: size}
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// LookAhead is the row limit to request: one more than the page size so the
// caller can tell whether a next page exists.
func (p Page) LookAhead() int {
	return p.Size + 1
}

// Info builds paging metadata from the number of rows fetched with LookAhead.
func (p Page) Info(fetched int) PagingInfo {
	info := PagingInfo{Page: p.Number, PageSize: p.Size, HasNext: fetched > p.Size}
	if p.Number > 1 {
		info.PrevPage = p.Number - 1
	}
	if info.HasNext {
		info.NextPage = p.Number + 1
	}
	return info
}
