/*
Package randx provides functions for generating unique identifiers.

It is used to generate UUID identifiers for accounts and stored messages, and
object keys for avatar uploads.
*/
package randx

import (
	"fmt"

	"github.com/google/uuid"
)

// UserID generates a standard UUID v4 string to serve as a stable account identifier.
func UserID() string {
	return uuid.New().String()
}

// MessageID generates a standard UUID v4 string to serve as a unique identifier for a stored message.
func MessageID() string {
	return uuid.New().String()
}

// AvatarKey generates the S3 object key for a user's avatar upload.
// Keys are namespaced under "avatars/<userID>/" so presigned uploads can be
// validated against the requesting account.
func AvatarKey(userID string, ext string) string {
	return fmt.Sprintf("avatars/%s/%s%s", userID, uuid.New().String(), ext)
}
