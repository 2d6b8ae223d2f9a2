// internal/handlers/session_http_test.go
package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateSessionHandler(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"time_control":"5+3"}`)
	req := httptest.NewRequest(http.MethodPost, "/session/create", body)
	rec := httptest.NewRecorder()
	srv.CreateSessionHandler(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp["code"], 6)

	_, found := srv.Registry.Get(resp["code"])
	require.True(t, found)
}

func TestCreateSessionHandlerRejectsBadTimeControl(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"time_control":"0+5"}`)
	req := httptest.NewRequest(http.MethodPost, "/session/create", body)
	rec := httptest.NewRecorder()
	srv.CreateSessionHandler(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, 0, srv.Registry.Len())
}

func TestGetSessionHandler(t *testing.T) {
	srv := newTestServer(t)

	body := strings.NewReader(`{"time_control":"3+2"}`)
	createReq := httptest.NewRequest(http.MethodPost, "/session/create", body)
	createRec := httptest.NewRecorder()
	srv.CreateSessionHandler(createRec, createReq)

	var created map[string]string
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))

	req := httptest.NewRequest(http.MethodGet, "/session/"+created["code"], nil)
	rec := httptest.NewRecorder()
	srv.GetSessionHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap sessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, created["code"], snap.Code)
	require.Equal(t, "3+2", snap.TimeControl)
	require.Equal(t, "pending", string(snap.State))
	require.EqualValues(t, 180000, snap.WhiteMs)
}

func TestGetSessionHandlerUnknownCode(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/session/ZZZZ99", nil)
	rec := httptest.NewRecorder()
	srv.GetSessionHandler(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessionsHandler(t *testing.T) {
	srv := newTestServer(t)

	for i := 0; i < 3; i++ {
		body := strings.NewReader(`{"time_control":"1+0"}`)
		req := httptest.NewRequest(http.MethodPost, "/session/create", body)
		srv.CreateSessionHandler(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodGet, "/session/list", nil)
	rec := httptest.NewRecorder()
	srv.ListSessionsHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snaps []sessionSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))
	require.Len(t, snaps, 3)
}
