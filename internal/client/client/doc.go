// Package client contains the client side of the LinkSphere HTTP API.
//
// HTTPClient wraps the auth endpoints, keeps the current token pair in memory
// and refreshes an expired access token transparently. Server failures come
// back as *APIError; transport failures match ErrUnavailable and missing or
// rejected sessions match ErrUnauthorized with errors.Is.
package client
