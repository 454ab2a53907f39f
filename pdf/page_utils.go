package pdf

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidPageSpec is wrapped by every page selection error.
var ErrInvalidPageSpec = errors.New("invalid page specification")

var whitespace = regexp.MustCompile(`\s`)

// ParsePageSpecifier parses a page specification string and returns a list of page numbers.
// Supports formats: "1", "1,3", "1-5", "1,3-5,7"
// Every page must lie in [1, totalPages]; ranges are checked before they are expanded.
func ParsePageSpecifier(pages string, totalPages int) ([]int, error) {
	// Remove all whitespace
	pages = whitespace.ReplaceAllString(pages, "")
	if pages == "" {
		return nil, fmt.Errorf("%w: empty page specification", ErrInvalidPageSpec)
	}

	var pageList []int
	parts := strings.Split(pages, ",")

	for _, part := range parts {
		if strings.Contains(part, "-") {
			// Range like "1-5"
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("%w: invalid range: %s", ErrInvalidPageSpec, part)
			}

			start, err := strconv.Atoi(rangeParts[0])
			if err != nil {
				return nil, fmt.Errorf("%w: invalid start page: %s", ErrInvalidPageSpec, rangeParts[0])
			}

			end, err := strconv.Atoi(rangeParts[1])
			if err != nil {
				return nil, fmt.Errorf("%w: invalid end page: %s", ErrInvalidPageSpec, rangeParts[1])
			}

			if start > end {
				return nil, fmt.Errorf("%w: start > end (%d > %d)", ErrInvalidPageSpec, start, end)
			}
			if err := ValidatePageNumbers([]int{start, end}, totalPages); err != nil {
				return nil, err
			}

			for i := start; i <= end; i++ {
				pageList = append(pageList, i)
			}
		} else {
			// Single page like "3"
			pageNum, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid page number: %s", ErrInvalidPageSpec, part)
			}
			if err := ValidatePageNumbers([]int{pageNum}, totalPages); err != nil {
				return nil, err
			}
			pageList = append(pageList, pageNum)
		}
	}

	// Sort and remove duplicates
	sort.Ints(pageList)
	deduped := []int{}
	for i, page := range pageList {
		if i == 0 || page != pageList[i-1] {
			deduped = append(deduped, page)
		}
	}

	return deduped, nil
}

// ValidatePageNumbers checks if all page numbers are valid for a given total number of pages
func ValidatePageNumbers(pages []int, totalPages int) error {
	for _, page := range pages {
		if page < 1 {
			return fmt.Errorf("%w: page numbers must be positive, got %d", ErrInvalidPageSpec, page)
		}
		if page > totalPages {
			return fmt.Errorf("%w: page %d exceeds total pages (%d)", ErrInvalidPageSpec, page, totalPages)
		}
	}
	return nil
}

// selectPages resolves an optional page specification against the page count.
// An empty specification selects every page.
func selectPages(spec string, totalPages int) ([]int, error) {
	if strings.TrimSpace(spec) == "" {
		pages := make([]int, totalPages)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages, nil
	}

	return ParsePageSpecifier(spec, totalPages)
}
