/*
Package user contains core data structures related to user identity.

It defines the basic representation of an authenticated chat participant (the User struct),
used for passing identity information both internally and to clients.
*/
package user

// User represents the identity bound to a connection or returned by the REST API.
// Fields use JSON tags for serialization in WebSocket and HTTP responses.
type User struct {

	// ID is the stable unique identifier for the account (UUID).
	ID string `json:"id"`

	// Username is the unique display name associated 1:1 with the account.
	Username string `json:"username"`

	// Avatar is the URL for the user's avatar, empty when none has been uploaded.
	Avatar string `json:"avatar,omitempty"`
}
