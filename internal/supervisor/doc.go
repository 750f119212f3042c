// Package supervisor keeps one lobby session alive.
//
// Each iteration looks at the session state and takes the single action that
// moves it toward Authenticated: connect when disconnected, log in when
// connected, otherwise poll the socket so a dead peer is noticed. Between
// iterations the loop waits for the retry interval, which grows with
// consecutive failures when the backoff multiplier is above one.
package supervisor
