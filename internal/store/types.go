package store

// Peer is a registry row. Name and Email are empty strings when the
// underlying columns are NULL.
type Peer struct {
	PublicKey string
	Name      string
	Email     string
	AddedOn   string
}

// UsageRow is one (peer, period) accounting row joined with peer
// metadata. Received/Sent carry accumulated totals, or month-only
// totals when the row was produced by a monthly-only query.
type UsageRow struct {
	PublicKey   string
	Name        string
	Email       string
	Period      string
	Received    int64
	Sent        int64
	LastUpdated string
}
