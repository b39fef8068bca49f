package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPricingHandler_Quote_Unauthorized(t *testing.T) {
	r := newTestRouter(nil)
	handler := &PricingHandler{}
	r.POST("/pricing/quote", handler.Quote)

	req, _ := http.NewRequest("POST", "/pricing/quote", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPricingHandler_Quote_MissingFields(t *testing.T) {
	userID := uuid.New()
	r := newTestRouter(&userID)
	handler := &PricingHandler{}
	r.POST("/pricing/quote", handler.Quote)

	req, _ := http.NewRequest("POST", "/pricing/quote", strings.NewReader(`{"reference_value": 0}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}
