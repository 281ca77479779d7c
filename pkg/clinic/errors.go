package clinic

import "errors"

var (
	ErrChairNotFound   = errors.New("chair not found")
	ErrPatientNotFound = errors.New("patient not found")
	ErrChairBusy       = errors.New("chair is being updated")
)
