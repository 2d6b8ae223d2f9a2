// internal/handlers/session_ws_test.go
package handlers

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchroom-gg/matchroom/internal/clock"
)

func TestSessionWSRejectsBadSubprotocol(t *testing.T) {
	srv := newTestServer(t)
	tc, err := clock.ParseTimeControl("3+2")
	require.NoError(t, err)
	sess, err := srv.Registry.Create(tc)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.SessionWSHandler(srv.Logger))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Dial without requesting the "match" subprotocol; the server must
	// close the socket with the dedicated close code.
	c, _, err := websocket.Dial(ctx, ts.URL+"/session/ws/"+sess.Code, nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	_, _, err = c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(BadSubprotocolError), websocket.CloseStatus(err))
}
