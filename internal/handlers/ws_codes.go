// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the session socket. These provide
// more specific reasons for closure than standard codes. Unknown session
// codes are rejected before the upgrade with a plain 404.
const (
	BadSubprotocolError   = 3000 // Client connected with an unsupported subprotocol.
	InvalidAuthTokenError = 3001 // Provided auth token was invalid or expired.
)
