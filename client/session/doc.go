// Package session holds the dashboard's credentials: the access token, the
// refresh token and the cached user profile.
//
// A Store keeps the active session in memory and writes it through to a
// Backend so it survives a restart. Both tokens are always written and
// cleared together; a backend that yields only one of them is read as logged
// out. Reads never touch the backend.
package session
