package processor

import "fmt"

// Failure codes sent back as the text of a negative response.
const (
	CodeInvalidBatchSeq      = "INV_BATCH_SEQ"
	CodeInvalidBatchSequence = "INVLD_BATCH_SEQ"
	CodeInvalidTranCode      = "INV_TRAN_CODE"
	CodeInvalidAuthCode      = "INV_AUTH_CODE"
	CodeUnmatchedVoid        = "UNMATCHED_VOID"
	CodeInvalidPin           = "INVALID_PIN"
	CodeCloseUnavailable     = "CLOSE_UNAVAIL"
	CodeError                = "ERROR"
)

// BusinessError is an expected validation outcome. Code goes on the wire, Err only to the log.
type BusinessError struct {
	Code string
	Err  error
}

func (e *BusinessError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func fail(code, format string, args ...any) error {
	return &BusinessError{Code: code, Err: fmt.Errorf(format, args...)}
}
