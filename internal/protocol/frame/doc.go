// Package frame owns the lobby request wire format.
//
// A request frame is:
//
//	0x00 <len> <seq> ' ' <command> [" ?"]
//
// where <len> is one byte holding the byte length of everything after it.
// The trailing " ?" marks a validated request, one the server acknowledges
// with a reply. Replies are not framed by this package; they are read as raw
// bytes by the client.
package frame
