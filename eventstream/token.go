package eventstream

import (
	"fmt"
	"strconv"
)

// Token is a marker of a consumer's position within the global event order.
//
// A token with a global sequence of n indicates that all events with a
// global sequence less than or equal to n have been consumed. Because the
// store assigns one gap-free global counter, position tracking collapses to
// a single comparable integer.
//
// Tokens are immutable values; all operations return a new token.
type Token struct {
	// GlobalSequence is the global sequence of the last event covered by the
	// token. It is zero for a token at the tail (start) of the stream.
	GlobalSequence uint64
}

// TailToken returns the token that precedes all events.
func TailToken() Token {
	return Token{}
}

// Covers returns true if t has consumed everything o has, and possibly more.
func (t Token) Covers(o Token) bool {
	return o.GlobalSequence <= t.GlobalSequence
}

// UpperBound returns the token that covers both t and o.
func (t Token) UpperBound(o Token) Token {
	if o.GlobalSequence > t.GlobalSequence {
		return o
	}

	return t
}

// Advance returns the token that covers one additional event.
func (t Token) Advance() Token {
	return Token{GlobalSequence: t.GlobalSequence + 1}
}

// AdvanceTo returns the token that covers all events up to and including n.
//
// The result never regresses; if t already covers n, t is returned
// unchanged.
func (t Token) AdvanceTo(n uint64) Token {
	if n > t.GlobalSequence {
		return Token{GlobalSequence: n}
	}

	return t
}

// Equal returns true if t and o are at the same position.
func (t Token) Equal(o Token) bool {
	return t == o
}

func (t Token) String() string {
	return fmt.Sprintf("token<%d>", t.GlobalSequence)
}

// MarshalText returns a persistable representation of the token.
func (t Token) MarshalText() ([]byte, error) {
	return strconv.AppendUint(nil, t.GlobalSequence, 10), nil
}

// UnmarshalText parses a token produced by MarshalText().
func (t *Token) UnmarshalText(data []byte) error {
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("unable to unmarshal tracking token: %w", err)
	}

	t.GlobalSequence = n

	return nil
}
