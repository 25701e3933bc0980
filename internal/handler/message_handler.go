/*
Package handler provides the HTTP handler for conversation history queries against
the durable message store.
*/
package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"chatwire/internal/pkg/auth/jwt"
	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/resp"
)

// HandleGetConversation returns the archived private messages between the
// authenticated user and the peer named in the URL, oldest first.
func HandleGetConversation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		peerID := chi.URLParam(r, "peerID")
		if _, err := uuid.Parse(peerID); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrConversationPeerInvalid))
			return
		}

		limit := 0
		if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
			parsed, err := strconv.Atoi(limitStr)
			if err != nil || parsed < 0 {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			limit = parsed
		}

		messages, err := deps.Messages.QueryConversation(r.Context(), payload.ID, peerID, limit)
		if err != nil {
			logx.Error(err, "Failed to query conversation", "user_id", payload.ID, "peer_id", peerID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"messages": messages,
		})
	}
}
