package client

import "unicode/utf8"

// Reply is what the server sent back for one validated request. Raw is
// unparsed; structured decoding plugs in through ReplyParser.
type Reply struct {
	Verb string
	Raw  []byte
}

func (r Reply) String() string {
	if utf8.Valid(r.Raw) {
		return string(r.Raw)
	}
	return "<binary>"
}

// ReplyParser turns the raw bytes of a reply into a Reply, or rejects it.
// A rejection during login counts as a failed login.
type ReplyParser interface {
	ParseReply(verb string, raw []byte) (Reply, error)
}

// ReplyParserFunc adapts a function to ReplyParser.
type ReplyParserFunc func(verb string, raw []byte) (Reply, error)

func (f ReplyParserFunc) ParseReply(verb string, raw []byte) (Reply, error) {
	return f(verb, raw)
}

// RawReplyParser accepts any non-empty reply. The lobby protocol has no
// documented status field yet, so presence is the only success signal.
type RawReplyParser struct{}

func (RawReplyParser) ParseReply(verb string, raw []byte) (Reply, error) {
	if len(raw) == 0 {
		return Reply{}, ErrEmptyReply
	}
	return Reply{Verb: verb, Raw: raw}, nil
}
