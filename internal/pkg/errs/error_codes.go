/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1005
)

// 2xxx: Messaging Business Logic Errors
const (
	// ErrConversationPeerInvalid indicates that a conversation history request named an invalid peer.
	ErrConversationPeerInvalid = 2001
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates a request that requires authentication carried no valid identity.
	ErrUnauthorized = 3001

	// ErrTokenMissing indicates that a WebSocket handshake presented no bearer token.
	ErrTokenMissing = 3002

	// ErrTokenInvalid indicates that the presented bearer token is invalid or expired.
	ErrTokenInvalid = 3003

	// ErrInvalidUsername indicates that the username failed validation.
	ErrInvalidUsername = 3101

	// ErrInvalidPassword indicates that the password failed validation.
	ErrInvalidPassword = 3102

	// ErrUserAlreadyExists indicates that the requested username is already taken.
	ErrUserAlreadyExists = 3103

	// ErrInvalidCredentials indicates a failed login attempt.
	ErrInvalidCredentials = 3104

	// ErrUserNotFound indicates that the requested account does not exist.
	ErrUserNotFound = 3105

	// ErrOldPasswordInvalid indicates that the current password check failed during a password change.
	ErrOldPasswordInvalid = 3106

	// ErrAlreadyLoggedIn indicates that an authenticated user attempted to register or log in again.
	ErrAlreadyLoggedIn = 3107
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrFileStorageFailed indicates a failure while talking to the avatar storage backend.
	ErrFileStorageFailed = 5001
)
