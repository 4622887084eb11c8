package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/worldtattoorating/backend/internal/auth"
	"github.com/worldtattoorating/backend/internal/middleware"

	"github.com/stretchr/testify/assert"
)

func TestAuthMiddlewareHandler_AuthCheck(t *testing.T) {
	loginChecker := &auth.LoginTestChecker{
		LoggedSessions: map[string]bool{
			"valid-token": true,
		},
	}
	authMiddleware := middleware.NewAuthMiddlewareHandler(loginChecker)

	testCases := []struct {
		name               string
		path               string
		method             string
		token              string
		expectedStatusCode int
	}{
		{
			name:               "PublicContactFormWithoutToken",
			path:               "/api/messages",
			method:             "POST",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "ListMessagesWithoutToken",
			path:               "/api/messages",
			method:             "GET",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "PatchMessageWithoutToken",
			path:               "/api/messages/123",
			method:             "PATCH",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "ListMessagesValidToken",
			path:               "/api/messages",
			method:             "GET",
			token:              "valid-token",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "ListMessagesInvalidToken",
			path:               "/api/messages",
			method:             "GET",
			token:              "invalid-token",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "PublicRegistrationFormWithoutToken",
			path:               "/api/registrations/tatuadores",
			method:             "POST",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "AcceptRegistrationWithoutToken",
			path:               "/api/registrations/tatuadores/123/accept",
			method:             "POST",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "DeleteRegistrationWithoutToken",
			path:               "/api/registrations/jurados/123",
			method:             "DELETE",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "StatsWithoutToken",
			path:               "/api/stats",
			method:             "GET",
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:               "LoginWithoutToken",
			path:               "/a/login",
			method:             "POST",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "SessionStatusWithoutValidToken",
			path:               "/a/session/status",
			method:             "GET",
			token:              "revoked-token",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "SessionSignalWithoutValidToken",
			path:               "/a/session/signal",
			method:             "POST",
			token:              "revoked-token",
			expectedStatusCode: http.StatusOK,
		},
		{
			name:               "Preflight",
			path:               "/api/messages",
			method:             "OPTIONS",
			expectedStatusCode: http.StatusOK,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.token != "" {
				req.Header.Add("X-WTR-TOKEN", tc.token)
			}

			rr := httptest.NewRecorder()
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
			authMiddleware.AuthCheck()(handler).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatusCode, rr.Code)
		})
	}
}
