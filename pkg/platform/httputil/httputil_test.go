package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "certportal/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantDesc   string
	}{
		{"unauthorized", dErrors.New(dErrors.CodeUnauthorized, "session rejected"), http.StatusUnauthorized, "unauthorized", "session rejected"},
		{"backend down", dErrors.New(dErrors.CodeUnavailable, "backend unavailable: 503"), http.StatusBadGateway, "bad_gateway", "backend unavailable: 503"},
		{"timeout", dErrors.New(dErrors.CodeTimeout, ""), http.StatusGatewayTimeout, "upstream_timeout", ""},
		{"invalid input", dErrors.New(dErrors.CodeInvalidInput, "bad target"), http.StatusBadRequest, "bad_request", "bad target"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "internal_error", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body["error"])
			assert.Equal(t, tt.wantDesc, body["error_description"])
		})
	}
}
