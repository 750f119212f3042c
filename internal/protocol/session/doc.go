// Package session owns lobby transport tuning shared by the client and the
// supervisor.
//
// Ownership boundary:
// - connect/read/reply/write timeouts
// - retry backoff between supervisor attempts
// - transport security (TLS) rules
//
// Request framing lives in package frame; the connection state machine lives
// in package client.
package session
