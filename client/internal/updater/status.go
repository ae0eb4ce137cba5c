package updater

// Status is the current phase of the check/download/install lifecycle. There
// is exactly one per coordinator and transitions are its only mutator.
type Status int

const (
	StatusIdle Status = iota
	StatusChecking
	StatusAvailable
	StatusNotAvailable
	StatusDownloading
	StatusDownloaded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusChecking:
		return "Checking"
	case StatusAvailable:
		return "Available"
	case StatusNotAvailable:
		return "NotAvailable"
	case StatusDownloading:
		return "Downloading"
	case StatusDownloaded:
		return "Downloaded"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}
