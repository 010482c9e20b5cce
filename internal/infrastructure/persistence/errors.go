package persistence

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/vetpms/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// mapStoreError translates low-level store failures into domain errors so
// callers never see driver internals. Record-not-found is left to callers
// that distinguish it; everything transport-shaped becomes ErrPersistenceUnavailable.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return shared.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.NewDomainError(shared.ErrDuplicate.Code, err.Error())
	}

	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return shared.NewDomainError(shared.ErrPersistenceUnavailable.Code, err.Error())
	}

	return err
}
