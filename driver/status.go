package driver

type Status string

const (
	Uninitialized Status = "uninitialized"
	Initializing  Status = "initializing"
	Ready         Status = "ready"
	Closed        Status = "closed"
)
