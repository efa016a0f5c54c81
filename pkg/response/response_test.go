package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func performJSON(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	handler(c)

	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	return w, body
}

func TestSuccess(t *testing.T) {
	w, body := performJSON(t, func(c *gin.Context) {
		Success(c, gin.H{"x": 1})
	})

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, expected 200", w.Code)
	}
	if body.Code != 0 || body.Message != "ok" {
		t.Errorf("body = %+v, expected code 0 / ok", body)
	}
}

func TestError_AppErrorStatusPropagates(t *testing.T) {
	tests := []struct {
		err    *AppError
		status int
	}{
		{NewBadRequest("bad"), http.StatusBadRequest},
		{NewTooManyRequests("quota"), http.StatusTooManyRequests},
		{NewBadGateway("all failed"), http.StatusBadGateway},
		{NewServiceUnavailable("no backend"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		w, body := performJSON(t, func(c *gin.Context) {
			Error(c, tt.err)
		})
		if w.Code != tt.status {
			t.Errorf("status = %d, expected %d", w.Code, tt.status)
		}
		if body.Code != tt.err.Code {
			t.Errorf("code = %d, expected %d", body.Code, tt.err.Code)
		}
	}
}

func TestError_PlainErrorIs500(t *testing.T) {
	w, body := performJSON(t, func(c *gin.Context) {
		Error(c, errors.New("boom"))
	})

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, expected 500", w.Code)
	}
	if body.Message != "boom" {
		t.Errorf("message = %q, expected boom", body.Message)
	}
}
