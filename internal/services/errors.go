package services

import "errors"

// ErrValidation marks a raw post that is missing a mandatory field.
// Validation failures are recorded on the owning job's log and skipped;
// they never abort a batch.
var ErrValidation = errors.New("raw post validation failed")
