package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	loaded    bool
	path      string
	initErr   error
	initMs    int64
}

func (f fakeModel) Status() (bool, string) { return f.loaded, f.path }
func (f fakeModel) Initialize() (int64, error) {
	if f.initErr != nil {
		return 0, f.initErr
	}
	return f.initMs, nil
}

type nopHub struct{}

func (nopHub) ServeHTTP(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealthEndpoint(t *testing.T) {
	r := NewRouter(fakeModel{}, nopHub{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"ok"`)
}

func TestModelStatusEndpoint(t *testing.T) {
	r := NewRouter(fakeModel{loaded: true, path: "model.onnx"}, nopHub{})
	req := httptest.NewRequest(http.MethodGet, "/model-status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"loaded":true`)
	require.Contains(t, w.Body.String(), `"model.onnx"`)
}

func TestInitializeModelSuccess(t *testing.T) {
	r := NewRouter(fakeModel{initMs: 42}, nopHub{})
	req := httptest.NewRequest(http.MethodPost, "/initialize-model", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"success":true`)
}

func TestInitializeModelFailure(t *testing.T) {
	r := NewRouter(fakeModel{initErr: errors.New("boom")}, nopHub{})
	req := httptest.NewRequest(http.MethodPost, "/initialize-model", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "boom")
}

func TestCORSPreflight(t *testing.T) {
	r := NewRouter(fakeModel{}, nopHub{})
	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
