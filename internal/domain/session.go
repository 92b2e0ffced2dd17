package domain

// EditSession is an open Play edit. Every remote call within a run is
// scoped to exactly one session.
type EditSession struct {
	ApplicationID string
	EditID        string
}
