package verification

import "errors"

var ErrInternal = errors.New("internal error")
