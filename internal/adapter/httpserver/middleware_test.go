package httpserver

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-candidate-evaluator/internal/domain"

	obsctx "github.com/fairyhunter13/ai-candidate-evaluator/internal/observability"
)

func TestRequestID_PropagatesIncomingHeader(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = obsctx.RequestIDFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	assert.Equal(t, "req-abc", seen)
	assert.Equal(t, "req-abc", rw.Header().Get(HeaderRequestID))
}

func TestRequestID_GeneratesULID(t *testing.T) {
	rw := httptest.NewRecorder()
	RequestID()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, rw.Header().Get(HeaderRequestID), 26)
	assert.NotEqual(t, newReqID(), newReqID())
}

func TestRecoverer_Writes500(t *testing.T) {
	rw := httptest.NewRecorder()
	Recoverer()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })).
		ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rw.Code)
	assert.Contains(t, rw.Body.String(), `"error":true`)
}

func TestSecurityHeadersAndAccessLog(t *testing.T) {
	rw := httptest.NewRecorder()
	h := AccessLog()(SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rw.Code)
	assert.Equal(t, "nosniff", rw.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rw.Header().Get("X-Frame-Options"))
}

func TestTimeoutMiddleware(t *testing.T) {
	rw := httptest.NewRecorder()
	TimeoutMiddleware(10*time.Millisecond)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		time.Sleep(50 * time.Millisecond)
	})).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rw.Code)
	assert.Contains(t, rw.Body.String(), "TIMEOUT")
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("id", "app_1-A"))

	cases := map[string]string{
		"":                       "REQUIRED",
		"a b":                    "INVALID_FORMAT",
		strings.Repeat("a", 101): "TOO_LONG",
	}
	for in, code := range cases {
		err := ValidateID("id", in)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		details := validationDetails(err).([]ValidationError)
		assert.Equal(t, code, details[0].Code)
	}
}
