package storage

import (
	"errors"

	"github.com/mmdatafocus/ledger_backend/utils"
)

func IsNotFound(err error) bool {
	return errors.Is(err, utils.ErrorRecordNotFound)
}

func IsDuplicateKey(err error) bool {
	return errors.Is(err, utils.ErrorDuplicateKey)
}
