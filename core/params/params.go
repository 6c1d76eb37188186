package params

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPageNumber = 1
	DefaultPageSize   = 20
	MaxPageSize       = 100
)

type QueryParams struct {
	PageNumber int
	PageSize   int
}

// NewQueryParams reads page/limit from the query string with sane bounds.
func NewQueryParams(c echo.Context) *QueryParams {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || page < 1 {
		page = DefaultPageNumber
	}
	size, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return &QueryParams{PageNumber: page, PageSize: size}
}
