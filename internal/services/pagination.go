package services

// Default and maximum page sizes for list operations.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// pageWindow normalizes page/pageSize and returns the row offset.
func pageWindow(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize, (page - 1) * pageSize
}
