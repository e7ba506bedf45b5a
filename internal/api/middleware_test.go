package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-appointment-scheduling/internal/appointment"
)

func TestTokenRoundTrip(t *testing.T) {
	actor := appointment.Actor{UserID: uuid.New(), Role: appointment.RoleSupervisor}
	tok, err := IssueToken(testSecret, actor, time.Minute)
	require.NoError(t, err)

	got, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestParseTokenRejects(t *testing.T) {
	sign := func(method jwt.SigningMethod, key any, claims Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := jwt.RegisteredClaims{Subject: uuid.NewString(), ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	cases := map[string]string{
		"wrong secret": sign(jwt.SigningMethodHS256, []byte("other"), Claims{Role: "patient", RegisteredClaims: valid}),
		"wrong alg":    sign(jwt.SigningMethodHS512, testSecret, Claims{Role: "patient", RegisteredClaims: valid}),
		"expired": sign(jwt.SigningMethodHS256, testSecret, Claims{Role: "patient", RegisteredClaims: jwt.RegisteredClaims{
			Subject: uuid.NewString(), ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}),
		"no expiry":    sign(jwt.SigningMethodHS256, testSecret, Claims{Role: "patient", RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()}}),
		"bad subject":  sign(jwt.SigningMethodHS256, testSecret, Claims{Role: "patient", RegisteredClaims: jwt.RegisteredClaims{Subject: "u-17", ExpiresAt: valid.ExpiresAt}}),
		"unknown role": sign(jwt.SigningMethodHS256, testSecret, Claims{Role: "janitor", RegisteredClaims: valid}),
		"garbage":      "not.a.jwt",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(testSecret, tok)
			assert.Error(t, err)
		})
	}
}

func TestParseTokenAcceptsRoleAliases(t *testing.T) {
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: "practicante",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	actor, err := ParseToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, appointment.RolePractitioner, actor.Role)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	router := newTestRouter(&fakeScheduler{})

	req := httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	router := newTestRouter(&fakeScheduler{})

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	_, err := uuid.Parse(rec.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestReadiness(t *testing.T) {
	cases := []struct {
		name     string
		postgres error
		redis    Pinger
		status   int
		body     string
	}{
		{"all up", nil, stubPinger{}, http.StatusOK, `"status":"ok"`},
		{"redis down", nil, stubPinger{err: assert.AnError}, http.StatusOK, `"status":"degraded"`},
		{"redis disabled", nil, nil, http.StatusOK, `"redis":"disabled"`},
		{"postgres down", assert.AnError, stubPinger{}, http.StatusServiceUnavailable, `"status":"error"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHealthHandler(stubPinger{err: tc.postgres}, tc.redis, "test", "v0")
			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.body)
		})
	}
}
