// ABOUTME: Page parameters and paged results for list queries
// ABOUTME: Clamps page sizes and computes total page counts

package store

const (
	// DefaultPageSize is used when a caller does not ask for a page size.
	DefaultPageSize = 10
	// MaxPageSize caps any requested page size.
	MaxPageSize = 50
)

// PageParams selects one page of a list query. Pages are 1-based.
type PageParams struct {
	PageNumber int
	PageSize   int
}

// Normalize returns params with defaults applied and the page size clamped.
func (p PageParams) Normalize() PageParams {
	if p.PageNumber < 1 {
		p.PageNumber = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

// Offset returns the number of rows skipped before this page.
func (p PageParams) Offset() int {
	return (p.PageNumber - 1) * p.PageSize
}

// PageMetadata describes where a page sits in the full result set.
type PageMetadata struct {
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
	PageSize    int `json:"pageSize"`
	TotalCount  int `json:"totalCount"`
}

// Page is one page of items plus metadata.
type Page[T any] struct {
	Metadata PageMetadata `json:"metadata"`
	Items    []T          `json:"items"`
}

// NewPage builds a Page from the items of one page and the total row count.
// params must already be normalized.
func NewPage[T any](items []T, totalCount int, params PageParams) *Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if params.PageSize > 0 {
		totalPages = (totalCount + params.PageSize - 1) / params.PageSize
	}
	return &Page[T]{
		Metadata: PageMetadata{
			CurrentPage: params.PageNumber,
			TotalPages:  totalPages,
			PageSize:    params.PageSize,
			TotalCount:  totalCount,
		},
		Items: items,
	}
}

// Container selects which side of a member's mailbox to list.
type Container string

const (
	ContainerInbox  Container = "Inbox"
	ContainerOutbox Container = "Outbox"
)

// MessageParams filters ListMessages.
type MessageParams struct {
	PageParams
	MemberID  string
	Container Container // defaults to Inbox
}
