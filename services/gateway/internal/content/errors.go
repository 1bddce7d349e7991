package content

import (
	"errors"
	"fmt"
)

var (
	ErrTooManyPreloads = errors.New("too many preloads")
	ErrProtocol        = errors.New("web4 protocol violation")
)

// FetchError is a transport failure while loading a bodyUrl or preload.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
