package models

// Sync event types published by the notifier.
const (
	EventEnrollmentCreated       = "enrollment-created"
	EventEnrollmentAlreadyExists = "enrollment-already-exists"
	EventAccessRequestApproved   = "access-request-approved"
	EventAccessRequestRejected   = "access-request-rejected"
	EventConsistencyRepaired     = "consistency-repaired"
	EventOrphansCleaned          = "orphans-cleaned"
)
