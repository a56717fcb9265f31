// Package apicommon provides common types, constants, and helper functions for the API.
package apicommon

import "time"

// MetadataKey is a type to define the key for the metadata stored in the
// context.
type MetadataKey string

// UserMetadataKey is the key used to store the user in the context.
const UserMetadataKey MetadataKey = "user"

const (
	// AuthCookieName is the cookie holding the access token of the browser
	// sessions. The route guard only checks its presence.
	AuthCookieName = "authToken"
	// DefaultSessionDuration is the cookie lifetime when the auth provider
	// does not report the token expiration.
	DefaultSessionDuration = time.Hour
	// MaxWebhookBodyBytes is the largest webhook payload accepted.
	MaxWebhookBodyBytes = int64(65536)
)
