package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"portfolio-go/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubContactService struct {
	got    model.ContactForm
	result model.ContactResult
}

func (s *stubContactService) Submit(_ context.Context, form model.ContactForm) model.ContactResult {
	s.got = form
	return s.result
}

func newContactRouter(svc *stubContactService) *gin.Engine {
	h := NewContactHandler(svc)
	r := gin.New()
	r.POST("/api/contact", h.Submit)
	return r
}

func TestContactAcceptsJSON(t *testing.T) {
	svc := &stubContactService{result: model.ContactResult{Success: true, Message: "Thanks Ada!"}}
	r := newContactRouter(svc)

	w := postJSON(r, "/api/contact", map[string]string{"name": "Ada", "email": "ada@example.com", "message": "Hello"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada", svc.got.Name)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Thanks Ada!", body["message"])
	assert.NotContains(t, body, "Kind")
}

func TestContactAcceptsFormFields(t *testing.T) {
	svc := &stubContactService{result: model.ContactResult{Success: true, Message: "ok"}}
	r := newContactRouter(svc)

	form := url.Values{"name": {"Ada"}, "email": {"ada@example.com"}, "message": {"Hi there"}}
	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.ContactForm{Name: "Ada", Email: "ada@example.com", Message: "Hi there"}, svc.got)
}

func TestContactStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		result model.ContactResult
		want   int
	}{
		{"validation", model.ContactResult{Error: "All fields are required", Kind: model.ContactInvalid}, http.StatusBadRequest},
		{"mail unavailable", model.ContactResult{Error: "Email service is not configured. Please try again later.", Kind: model.ContactUnavailable}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newContactRouter(&stubContactService{result: tt.result})

			w := postJSON(r, "/api/contact", map[string]string{"name": "Ada"})

			assert.Equal(t, tt.want, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.result.Error, body["error"])
		})
	}
}
