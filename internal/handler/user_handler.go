/*
Package handler provides HTTP handler functions for user profile management,
including avatar uploads through presigned S3 URLs.
*/
package handler

import (
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"chatwire/internal/pkg/auth/jwt"
	"chatwire/internal/pkg/errs"
	"chatwire/internal/pkg/logx"
	"chatwire/internal/pkg/randx"
	"chatwire/internal/pkg/req"
	"chatwire/internal/pkg/resp"
)

const (
	// MaxAvatarSize is the maximum allowed avatar file size in bytes (2 MB).
	MaxAvatarSize = 2 * 1024 * 1024

	// AvatarPresignDuration is how long a presigned avatar upload URL stays valid.
	AvatarPresignDuration = 5 * time.Minute
)

// avatarExtToMIME maps permitted avatar file extensions to their MIME types.
var avatarExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// HandleGetProfile retrieves the authenticated user's profile.
func HandleGetProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		profile, err := deps.Identity.GetProfile(r.Context(), payload.ID)
		if err != nil {
			resp.RespondError(w, r, identityError(err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": profile})
	}
}

type UpdateProfileInput struct {
	Username string `json:"username"`
}

// HandleUpdateProfile renames the authenticated account. The username is embedded
// in identity tokens, so a fresh token is issued alongside the updated profile.
func HandleUpdateProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input UpdateProfileInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if err := deps.Identity.Rename(r.Context(), payload.ID, input.Username); err != nil {
			resp.RespondError(w, r, identityError(err))
			return
		}

		profile, err := deps.Identity.GetProfile(r.Context(), payload.ID)
		if err != nil {
			resp.RespondError(w, r, identityError(err))
			return
		}

		newToken, err := jwt.GenerateToken(&jwt.Payload{
			ID:       profile.ID,
			Username: profile.Username,
		}, deps.Config.JWTSecret, jwt.UserIdentityExpiration)
		if err != nil {
			logx.Error(err, "Failed to generate token after rename", "user_id", payload.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token": newToken,
			"user":  profile,
		})
	}
}

// HandleDeleteAccount removes the authenticated account, its archived messages
// (via cascade), and terminates any live chat session.
func HandleDeleteAccount(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if err := deps.Identity.DeleteAccount(r.Context(), payload.ID); err != nil {
			resp.RespondError(w, r, identityError(err))
			return
		}

		if _, conn, ok := deps.Registry.Lookup(payload.ID); ok {
			conn.Kick("Account deleted.")
		}

		resp.RespondSuccess(w, r, map[string]any{"message": "Account deleted successfully."})
	}
}

type PresignAvatarInput struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// HandlePresignAvatar validates the requested avatar file and returns a presigned
// upload URL. The resulting public URL is stored on the profile immediately; the
// client uploads to the presigned URL afterwards.
func HandlePresignAvatar(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input PresignAvatarInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if input.FileSize <= 0 || input.FileSize > MaxAvatarSize {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		ext := strings.ToLower(filepath.Ext(input.FileName))
		expectedMIME, ok := avatarExtToMIME[ext]
		if !ok || expectedMIME != strings.ToLower(input.MimeType) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		key := randx.AvatarKey(payload.ID, ext)

		uploadURL, err := deps.Storage.PresignUpload(r.Context(), key, expectedMIME, input.FileSize, AvatarPresignDuration)
		if err != nil {
			logx.Error(err, "Failed to presign avatar upload", "user_id", payload.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		avatarURL := deps.FullAssetURL(key)

		if err := deps.Identity.SetAvatar(r.Context(), payload.ID, avatarURL); err != nil {
			resp.RespondError(w, r, identityError(err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"uploadUrl": uploadURL,
			"key":       key,
			"avatarUrl": avatarURL,
		})
	}
}
