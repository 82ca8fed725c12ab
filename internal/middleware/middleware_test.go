package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/capitalize-ai/social-inbox/pkg/logger"
)

const secret = "test-secret"

func signed(t *testing.T, method jwt.SigningMethod, key interface{}, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func agentClaims(subject string, dept *int) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		DepartmentID: dept,
	}
}

func TestAuth(t *testing.T) {
	dept := 4
	var gotActor int
	var gotDept *int
	h := Auth(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = GetActorID(r.Context())
		gotDept = GetDepartmentID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	expired := agentClaims("7", nil)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte("other"), agentClaims("7", nil)), http.StatusUnauthorized},
		{"expired", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(secret), expired), http.StatusUnauthorized},
		{"non numeric subject", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(secret), agentClaims("alice", nil)), http.StatusUnauthorized},
		{"valid", "Bearer " + signed(t, jwt.SigningMethodHS256, []byte(secret), agentClaims("7", &dept)), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotActor, gotDept = 0, nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				assert.Equal(t, 7, gotActor)
				require.NotNil(t, gotDept)
				assert.Equal(t, 4, *gotDept)
			} else {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestActorContextHelpers(t *testing.T) {
	ctx := WithActor(httptest.NewRequest(http.MethodGet, "/", nil).Context(), 9, nil)
	assert.Equal(t, 9, GetActorID(ctx))
	assert.Nil(t, GetDepartmentID(ctx))
}

func TestLoggingRecordsRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := &logger.Logger{Logger: zap.New(core)}

	var correlationID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID = GetCorrelationID(r.Context())
		GetLogger(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	})
	h := Logging(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		TrackActor(inner).ServeHTTP(w, r.WithContext(WithActor(r.Context(), 5, nil)))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/filters", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "corr-1", rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "corr-1", correlationID)

	inside := logs.FilterMessage("inside handler").All()
	require.Len(t, inside, 1)
	assert.Equal(t, "corr-1", inside[0].ContextMap()["correlation_id"])
	assert.Equal(t, int64(5), inside[0].ContextMap()["actor_id"])

	done := logs.FilterMessage("request completed").All()
	require.Len(t, done, 1)
	fields := done[0].ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, int64(5), fields["actor_id"])
	assert.Equal(t, "/api/v1/filters", fields["path"])
}

func TestLoggingGeneratesCorrelationID(t *testing.T) {
	h := Logging(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestRateLimitPerAgent(t *testing.T) {
	h := RateLimit(1, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	call := func(agent int) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithActor(req.Context(), agent, nil))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call(1))
	assert.Equal(t, http.StatusTooManyRequests, call(1))
	assert.Equal(t, http.StatusOK, call(2), "limits are tracked per agent")
}

func TestParseID(t *testing.T) {
	for _, raw := range []string{"", "0", "-3", "abc", "1.5"} {
		_, err := ParseID(raw)
		assert.Error(t, err, raw)
	}
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, 42, id)

	opt, err := ParseOptionalID("")
	require.NoError(t, err)
	assert.Nil(t, opt)
	opt, err = ParseOptionalID(strconv.Itoa(8))
	require.NoError(t, err)
	assert.Equal(t, 8, *opt)
}

func TestValidateKeywordAndLimit(t *testing.T) {
	assert.NoError(t, ValidateKeyword("refund"))
	assert.Error(t, ValidateKeyword(string(make([]byte, 300))))
	assert.Error(t, ValidateKeyword("\xff"))

	assert.NoError(t, ValidateLimit(0, 10))
	assert.Error(t, ValidateLimit(-1, 10))
	assert.Error(t, ValidateLimit(11, 10))
}
