package req

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatwire/internal/pkg/errs"
)

type loginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func bindRequest(t *testing.T, contentType, body string) *errs.CustomError {
	t.Helper()

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}

	var dst loginInput
	return BindJSON(r, &dst)
}

func TestBindJSONValid(t *testing.T) {
	if err := bindRequest(t, "application/json", `{"username":"alice","password":"secret"}`); err != nil {
		t.Errorf("BindJSON = %v, want nil", err)
	}
}

func TestBindJSONAcceptsCharsetSuffix(t *testing.T) {
	if err := bindRequest(t, "application/json; charset=utf-8", `{"username":"alice"}`); err != nil {
		t.Errorf("BindJSON = %v, want nil", err)
	}
}

func TestBindJSONRejections(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantCode    int
	}{
		{name: "missing content type", contentType: "", body: `{}`, wantCode: errs.ErrUnsupportedMediaType},
		{name: "wrong content type", contentType: "text/plain", body: `{}`, wantCode: errs.ErrUnsupportedMediaType},
		{name: "invalid json", contentType: "application/json", body: `{broken`, wantCode: errs.ErrInvalidJSONFormat},
		{name: "unknown field", contentType: "application/json", body: `{"username":"a","extra":true}`, wantCode: errs.ErrInvalidJSONFormat},
		{name: "trailing content", contentType: "application/json", body: `{"username":"a"}{"again":true}`, wantCode: errs.ErrExtraContentInBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bindRequest(t, tt.contentType, tt.body)
			if err == nil || err.Code != tt.wantCode {
				t.Errorf("BindJSON = %v, want code %d", err, tt.wantCode)
			}
		})
	}
}
