package ledger

// PlatformFeeRate is the service fee taken from the gross converted
// amount at creation time.
const PlatformFeeRate = 0.005

// Default list pagination
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)
