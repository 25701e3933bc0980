/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"errors"
	"net/http"

	"chatwire/internal/app/identity"
	"chatwire/internal/pkg/auth/jwt"
	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/req"
	"chatwire/internal/pkg/resp"
)

// identityError maps identity service errors to client-facing error codes.
func identityError(err error) *errs.CustomError {
	switch {
	case errors.Is(err, identity.ErrInvalidUsername):
		return errs.NewError(errs.ErrInvalidUsername)
	case errors.Is(err, identity.ErrInvalidPassword):
		return errs.NewError(errs.ErrInvalidPassword)
	case errors.Is(err, identity.ErrUsernameTaken):
		return errs.NewError(errs.ErrUserAlreadyExists)
	case errors.Is(err, identity.ErrInvalidCredentials):
		return errs.NewError(errs.ErrInvalidCredentials)
	case errors.Is(err, identity.ErrNotFound):
		return errs.NewError(errs.ErrUserNotFound)
	case errors.Is(err, identity.ErrOldPasswordMismatch):
		return errs.NewError(errs.ErrOldPasswordInvalid)
	default:
		return errs.NewError(errs.ErrUnknown, err)
	}
}

type CredentialsInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleRegister processes the request to create a new user account with username and password.
// On success it issues an identity token, exactly like a login.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payload := jwt.GetPayloadFromContext(r); payload != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input CredentialsInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		newUser, err := deps.Identity.Register(r.Context(), input.Username, input.Password)
		if err != nil {
			resp.RespondError(w, r, identityError(err))
			return
		}

		payload := &jwt.Payload{
			ID:       newUser.ID,
			Username: newUser.Username,
		}

		tokenString, err := jwt.GenerateToken(payload, deps.Config.JWTSecret, jwt.UserIdentityExpiration)
		if err != nil {
			logx.Error(err, "Failed to generate token after registration")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token": tokenString,
			"user":  newUser,
		})
	}
}

// HandleLogin verifies user credentials and issues a JWT token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payload := jwt.GetPayloadFromContext(r); payload != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input CredentialsInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		authedUser, err := deps.Identity.Authenticate(r.Context(), input.Username, input.Password)
		if err != nil {
			resp.RespondError(w, r, identityError(err))
			return
		}

		payload := &jwt.Payload{
			ID:       authedUser.ID,
			Username: authedUser.Username,
		}

		tokenString, err := jwt.GenerateToken(payload, deps.Config.JWTSecret, jwt.UserIdentityExpiration)
		if err != nil {
			logx.Error(err, "Failed to generate token after login")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token": tokenString,
			"user":  authedUser,
		})
	}
}

// HandleValidateToken reports whether the presented token is still valid and the
// account still exists. It never fails: an invalid token yields isAuthenticated=false.
func HandleValidateToken(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondSuccess(w, r, map[string]any{"isAuthenticated": false})
			return
		}

		authedUser, err := deps.Identity.GetProfile(r.Context(), payload.ID)
		if err != nil {
			resp.RespondSuccess(w, r, map[string]any{"isAuthenticated": false})
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"isAuthenticated": true,
			"user":            authedUser,
		})
	}
}

// HandleLogout terminates the caller's live chat session, if any. Tokens are
// stateless, so the client discards its copy; the server's only logout side effect
// is the disconnect, which deregisters the user from presence.
func HandleLogout(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if _, conn, ok := deps.Registry.Lookup(payload.ID); ok {
			conn.Kick("Logged out.")
		}

		resp.RespondSuccess(w, r, map[string]any{"message": "Logged out successfully."})
	}
}

type ChangePasswordInput struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// HandleChangePassword verifies the current password, stores the new one, and
// issues a fresh token.
func HandleChangePassword(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input ChangePasswordInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.Identity.ChangePassword(r.Context(), payload.ID, input.OldPassword, input.NewPassword); err != nil {
			resp.RespondError(w, r, identityError(err))
			return
		}

		newToken, err := jwt.GenerateToken(&jwt.Payload{
			ID:       payload.ID,
			Username: payload.Username,
		}, deps.Config.JWTSecret, jwt.UserIdentityExpiration)
		if err != nil {
			logx.Error(err, "Failed to generate token after password change", "user_id", payload.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token": newToken,
		})
	}
}
