package utils

import "errors"

var ErrorRecordNotFound = errors.New("record not found")

// ErrorDuplicateKey is returned by stores when a unique column collides.
var ErrorDuplicateKey = errors.New("duplicate key")
