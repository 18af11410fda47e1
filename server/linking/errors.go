package linking

import (
	"errors"
	"fmt"

	"github.com/Daskott/tandem/server/models"
)

var (
	ErrInvalidFormat        = errors.New("invalid share code or username")
	ErrNotFound             = errors.New("no active contact card found")
	ErrSelfLinkRejected     = errors.New("you cannot add yourself as a contact")
	ErrRequesterCardMissing = errors.New("create your contact card before adding contacts")
	ErrLookupFailed         = errors.New("unable to look up contact card")
	ErrWriteFailed          = models.ErrWriteFailed
)

func invalidFormat(input string) error {
	return fmt.Errorf("%w: %q", ErrInvalidFormat, input)
}
