package entity

// Delivery summarizes how an issuance notification went out.
type Delivery struct {
	Channel  string
	Skipped  bool
	Reason   string
	Attempts int
}
