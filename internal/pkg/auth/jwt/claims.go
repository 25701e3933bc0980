package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the structure of the JSON Web Token (JWT) claims for chatwire.
// It includes standard claims required by the JWT specification and the custom claims
// necessary for identifying users across the REST API and WebSocket handshake.
type Payload struct {
	// StandardClaims embeds the necessary JWT standard fields such as Exp (Expiration),
	// Iat (Issued At), and Iss (Issuer). These are crucial for token validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the account's stable user identifier (UUID).
	ID string `json:"id"`

	// Username is the display name bound to the account at issuance time. The server
	// always resolves identity from this verified payload, never from client-supplied
	// message fields.
	Username string `json:"username"`
}
