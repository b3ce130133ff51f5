package consumer

import "github.com/cockroachdb/errors"

var (
	ErrInvalidConfig  = errors.New("invalid consumer config")
	ErrInvalidMessage = errors.New("invalid transaction message")
	errPermanent      = errors.New("permanent processing failure")
)

// Permanent marks err so the engine gives up on the message without further
// attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, errPermanent)
}

func IsPermanent(err error) bool {
	return errors.Is(err, errPermanent)
}
