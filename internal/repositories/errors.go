package repositories

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable reports that the backing store could not be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrMessageNotFound  = errors.New("message not found")
	ErrBlobNotFound     = errors.New("blob not found")
	ErrConfigNotFound   = errors.New("config key not found")
)

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
