package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrActiveEnrollmentExists reports that another writer already created the active enrollment for a pair.
	ErrActiveEnrollmentExists = errors.New("active enrollment already exists")
	// ErrPendingRequestExists reports that a pending access request already exists for a pair.
	ErrPendingRequestExists = errors.New("pending access request already exists")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
