package ipgate

const (
	OutcomeAuthorized = "authorized"
	OutcomeRejected   = "rejected"
)

const rejectionLogMessage = "request rejected by access filter"
