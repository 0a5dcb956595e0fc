package eventloop

// Badge proves that a call comes from an event loop. Only this package can
// mint a valid one, so entry points that take a Badge cannot be driven by
// arbitrary callers. The zero Badge is invalid.
type Badge struct {
	token *badgeToken
}

type badgeToken struct{ _ byte }

var loopToken = &badgeToken{}

// Valid reports whether b was minted by an event loop.
func (b Badge) Valid() bool {
	return b.token != nil && b.token == loopToken
}

func mintBadge() Badge {
	return Badge{token: loopToken}
}
