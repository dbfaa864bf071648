package pagination_test

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/JaimeStill/tally/pkg/pagination"
)

func testPagingConfig() pagination.Config {
	return pagination.Config{DefaultPageSize: 20, MaxPageSize: 100}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name         string
		page         int
		pageSize     int
		wantPage     int
		wantPageSize int
	}{
		{name: "zero values", page: 0, pageSize: 0, wantPage: 1, wantPageSize: 20},
		{name: "negative page", page: -3, pageSize: 10, wantPage: 1, wantPageSize: 10},
		{name: "oversized page size", page: 2, pageSize: 500, wantPage: 2, wantPageSize: 100},
		{name: "in range", page: 4, pageSize: 50, wantPage: 4, wantPageSize: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := pagination.PageRequest{Page: tt.page, PageSize: tt.pageSize}
			req.Normalize(testPagingConfig())

			if req.Page != tt.wantPage || req.PageSize != tt.wantPageSize {
				t.Errorf("normalized to %d/%d, want %d/%d",
					req.Page, req.PageSize, tt.wantPage, tt.wantPageSize)
			}
		})
	}
}

func TestPageRequestFromQuery(t *testing.T) {
	values := url.Values{}
	values.Set("page", "2")
	values.Set("page_size", "25")
	values.Set("search", "acme")
	values.Set("sort", "filename,-created_at")

	req := pagination.PageRequestFromQuery(values, testPagingConfig())

	if req.Page != 2 || req.PageSize != 25 {
		t.Errorf("page = %d/%d, want 2/25", req.Page, req.PageSize)
	}
	if req.Search == nil || *req.Search != "acme" {
		t.Errorf("search = %v, want acme", req.Search)
	}
	if len(req.Sort) != 2 {
		t.Fatalf("sort = %v, want 2 fields", req.Sort)
	}
	if req.Sort[0].Field != "filename" || req.Sort[0].Descending {
		t.Errorf("sort[0] = %+v, want filename ascending", req.Sort[0])
	}
	if req.Sort[1].Field != "created_at" || !req.Sort[1].Descending {
		t.Errorf("sort[1] = %+v, want created_at descending", req.Sort[1])
	}
}

func TestSortFieldsUnmarshal(t *testing.T) {
	var fromString pagination.SortFields
	if err := json.Unmarshal([]byte(`"-status, filename"`), &fromString); err != nil {
		t.Fatalf("string form: %v", err)
	}
	if len(fromString) != 2 || !fromString[0].Descending || fromString[1].Field != "filename" {
		t.Errorf("string form = %+v", fromString)
	}

	var fromArray pagination.SortFields
	if err := json.Unmarshal([]byte(`[{"Field":"status","Descending":true}]`), &fromArray); err != nil {
		t.Fatalf("array form: %v", err)
	}
	if len(fromArray) != 1 || fromArray[0].Field != "status" || !fromArray[0].Descending {
		t.Errorf("array form = %+v", fromArray)
	}
}

func TestNewPageResult(t *testing.T) {
	tests := []struct {
		name           string
		total          int
		pageSize       int
		wantTotalPages int
	}{
		{name: "exact multiple", total: 40, pageSize: 20, wantTotalPages: 2},
		{name: "partial last page", total: 41, pageSize: 20, wantTotalPages: 3},
		{name: "empty result", total: 0, pageSize: 20, wantTotalPages: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := pagination.NewPageResult[string](nil, tt.total, 1, tt.pageSize)

			if result.TotalPages != tt.wantTotalPages {
				t.Errorf("total pages = %d, want %d", result.TotalPages, tt.wantTotalPages)
			}
			if result.Data == nil {
				t.Error("data should never be nil")
			}
		})
	}
}
