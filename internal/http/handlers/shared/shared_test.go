package shared

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parcelsync/internal/http/response"

	"github.com/gin-gonic/gin"
)

var errTarget = errors.New("target")

func TestRespondMappedError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rules := []MappedError{{Target: errTarget, Code: response.CodeConflict, Msg: "conflict"}}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	RespondMappedError(c, fmt.Errorf("wrapped: %w", errTarget), rules, response.CodeInternal, "failed")
	if w.Code != http.StatusConflict {
		t.Fatalf("wrapped target should map to 409, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	RespondMappedError(c, errors.New("other"), rules, response.CodeInternal, "failed")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("unmatched error should fall back to 500, got %d", w.Code)
	}
}

func TestNormalizePagination(t *testing.T) {
	cases := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, 20},
		{3, 500, 3, 100},
		{2, 50, 2, 50},
	}
	for _, tc := range cases {
		page, size := NormalizePagination(tc.page, tc.size)
		if page != tc.wantPage || size != tc.wantSize {
			t.Fatalf("NormalizePagination(%d,%d)=(%d,%d)", tc.page, tc.size, page, size)
		}
	}
}

func TestParseUintParam(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	if id, ok := ParseUintParam(c, "id"); !ok || id != 42 {
		t.Fatalf("want 42 got %d %v", id, ok)
	}
	c.Params = gin.Params{{Key: "id", Value: "0"}}
	if _, ok := ParseUintParam(c, "id"); ok {
		t.Fatalf("zero id must be rejected")
	}
}
