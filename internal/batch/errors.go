package batch

import "errors"

// ErrNotFound is returned when the file or directory handed to the aggregator
// does not exist. Returned errors also match fs.ErrNotExist.
var ErrNotFound = errors.New("batch: not found")
