/*
Package handler provides the HTTP handlers and routing setup for the chatwire server.

This file contains the WebSocket connection handler. It is the connection
authenticator: the bearer token presented at handshake time is verified before the
HTTP connection is upgraded, so no session ever exists — and no presence entry is
ever created — for an unauthenticated client.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"chatwire/internal/app/chat"
	"chatwire/internal/app/user"
	"chatwire/internal/pkg/auth/jwt"
	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/limiter"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/resp"
)

// bearerToken extracts the handshake credential. Browser WebSocket clients cannot
// set request headers, so the "token" query parameter is checked first, with the
// Authorization header as a fallback for non-browser clients.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	const prefix = "Bearer "
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > len(prefix) && authHeader[:len(prefix)] == prefix {
		return authHeader[len(prefix):]
	}

	return ""
}

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// Authentication runs to completion before the upgrade: a missing or invalid token
// refuses the connection with HTTP 401 and leaves the presence registry untouched.
func HandleWebSocket(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		token := bearerToken(r)
		if token == "" {
			logx.Warn("WebSocket connection rejected: No token presented.")
			resp.RespondError(w, r, errs.NewError(errs.ErrTokenMissing))
			return
		}

		payload, err := jwt.ParseToken(token, deps.Config.JWTSecret)
		if err != nil {
			logx.Warn("WebSocket connection rejected: Invalid token.", "error", err)
			resp.RespondError(w, r, errs.NewError(errs.ErrTokenInvalid))
			return
		}

		currentUser := user.User{
			ID:       payload.ID,
			Username: payload.Username,
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		session := chat.NewSession(conn, currentUser, deps.Registry, deps.Router)

		go session.WritePump()

		// Identity is bound; admit the session into presence. This broadcasts the
		// updated roster to all connected clients, including this one.
		session.Activate()

		logx.Info("WebSocket connection established",
			"user_id", currentUser.ID,
			"username", currentUser.Username,
		)

		session.ReadPump()
	}
}
