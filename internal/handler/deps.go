package handler

import (
	"context"
	"fmt"
	"strings"

	"chatwire/internal/app/chat"
	"chatwire/internal/app/identity"
	"chatwire/internal/app/storage"
	"chatwire/internal/app/store"
	"chatwire/internal/configs"
)

// ConversationStore is the slice of the message store the HTTP layer needs.
type ConversationStore interface {
	QueryConversation(ctx context.Context, userA, userB string, limit int) ([]store.Message, error)
}

// AppDeps bundles the collaborators the HTTP handlers are built from.
type AppDeps struct {
	Registry *chat.Registry
	Router   *chat.Router
	Identity *identity.Service
	Messages ConversationStore
	Storage  storage.StorageService
	Config   *configs.AppConfig
}

// FullAssetURL resolves an S3 object key to its public URL. Keys that are
// already absolute URLs or empty pass through unchanged.
func (d *AppDeps) FullAssetURL(key string) string {
	if key == "" || strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key
	}

	return fmt.Sprintf("%s/%s/%s",
		strings.TrimSuffix(d.Config.S3Endpoint, "/"),
		d.Config.S3BucketName,
		key,
	)
}
