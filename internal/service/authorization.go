package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"polimarket/config"
	"polimarket/internal/models"
	"polimarket/internal/store"
	"polimarket/internal/util"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Vendor list views
const (
	VendorViewAll        = ""
	VendorViewAuthorized = "authorized"
	VendorViewPending    = "pending"
)

// AuthorizationRegistry decides which vendors may sell
type AuthorizationRegistry struct {
	repo      store.Transactor
	publisher EventPublisher
	validity  time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewAuthorizationRegistry(repo store.Transactor, publisher EventPublisher, cfg config.BusinessConfig) *AuthorizationRegistry {
	validity := cfg.AuthorizationValidity
	if validity <= 0 {
		validity = config.DefaultBusiness().AuthorizationValidity
	}
	return &AuthorizationRegistry{
		repo:      repo,
		publisher: publisher,
		validity:  validity,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// vendorAuthorized: active, flagged, and holding a record valid at now.
func vendorAuthorized(ctx context.Context, repo store.Repository, vendor *models.Person, now time.Time) (bool, error) {
	if !vendor.Active || !vendor.Authorized {
		return false, nil
	}
	auths, err := repo.ListAuthorizations(ctx, store.AuthorizationFilter{
		VendorID: vendor.ID,
		ActiveAt: &now,
	})
	if err != nil {
		return false, err
	}
	return len(auths) > 0, nil
}

// IsAuthorized reports whether the vendor may register sales now. Unknown
// vendors are not authorized.
func (r *AuthorizationRegistry) IsAuthorized(ctx context.Context, vendorID int64) (bool, error) {
	ctx, span := util.StartSpan(ctx, "AuthorizationRegistry.IsAuthorized",
		attribute.Int64("vendor.id", vendorID))
	defer span.End()

	vendor, err := r.repo.GetPerson(ctx, vendorID, models.PersonKindVendor)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return vendorAuthorized(ctx, r.repo, vendor, r.now())
}

// Authorize grants the vendor a new validity window unless one is already current.
func (r *AuthorizationRegistry) Authorize(ctx context.Context, vendorID int64, code string) (*models.AuthorizationStatus, error) {
	ctx, span := util.StartSpan(ctx, "AuthorizationRegistry.Authorize",
		attribute.Int64("vendor.id", vendorID))
	var err error
	defer func() { util.EndSpan(span, err) }()

	code = strings.TrimSpace(code)
	if code == "" {
		err = fmt.Errorf("%w: authorization code is required", ErrInvalidArgument)
		return nil, err
	}

	now := r.now()
	var granted *models.Authorization

	err = r.repo.WithTx(ctx, func(tx store.Repository) error {
		vendor, err := tx.GetPerson(ctx, vendorID, models.PersonKindVendor)
		if err != nil {
			return err
		}
		if !vendor.Active {
			return fmt.Errorf("%w: vendor %d is inactive", ErrInvalidArgument, vendorID)
		}

		current, err := vendorAuthorized(ctx, tx, vendor, now)
		if err != nil || current {
			return err
		}

		vendor.Authorized = true
		vendor.AuthorizedAt = &now
		if err := tx.UpdatePerson(ctx, vendor); err != nil {
			return err
		}

		granted = &models.Authorization{
			Code:       code,
			VendorID:   vendorID,
			Type:       models.AuthorizationTypeSales,
			ValidFrom:  now,
			ValidUntil: now.Add(r.validity),
		}
		return tx.CreateAuthorization(ctx, granted)
	})
	if err != nil {
		return nil, err
	}

	if granted != nil {
		util.VendorAuthorizationsTotal.Inc()
		r.logger.Info("Vendor authorized",
			zap.Int64("vendor_id", vendorID),
			zap.String("code", code),
			zap.Time("valid_until", granted.ValidUntil))

		event := &models.VendorAuthorizedEvent{
			BaseEvent:         newBaseEvent(models.EventTypeVendorAuthorized, now),
			VendorID:          vendorID,
			AuthorizationCode: code,
			ValidUntil:        granted.ValidUntil,
		}
		logPublishError(r.logger, event.EventType, r.publisher.PublishVendorAuthorized(ctx, event))
	} else {
		r.logger.Debug("Vendor already authorized", zap.Int64("vendor_id", vendorID))
	}

	return r.Status(ctx, vendorID)
}

// Status summarizes the vendor's authorization
func (r *AuthorizationRegistry) Status(ctx context.Context, vendorID int64) (*models.AuthorizationStatus, error) {
	ctx, span := util.StartSpan(ctx, "AuthorizationRegistry.Status")
	defer span.End()

	vendor, err := r.repo.GetPerson(ctx, vendorID, models.PersonKindVendor)
	if err != nil {
		return nil, err
	}
	return r.status(ctx, vendor)
}

func (r *AuthorizationRegistry) status(ctx context.Context, vendor *models.Person) (*models.AuthorizationStatus, error) {
	authorized, err := vendorAuthorized(ctx, r.repo, vendor, r.now())
	if err != nil {
		return nil, err
	}

	status := &models.AuthorizationStatus{
		VendorID:          vendor.ID,
		VendorName:        vendor.FullName(),
		IsAuthorized:      authorized,
		AuthorizationDate: vendor.AuthorizedAt,
		StatusLabel:       models.StatusLabelNotAuthorized,
	}
	if authorized {
		status.StatusLabel = models.StatusLabelAuthorized
	}
	return status, nil
}

// ListVendors returns vendors filtered by view: all, currently authorized, or
// active but pending authorization.
func (r *AuthorizationRegistry) ListVendors(ctx context.Context, view string) ([]models.AuthorizationStatus, error) {
	ctx, span := util.StartSpan(ctx, "AuthorizationRegistry.ListVendors")
	defer span.End()

	if view != VendorViewAll && view != VendorViewAuthorized && view != VendorViewPending {
		return nil, fmt.Errorf("%w: unknown vendor view %q", ErrInvalidArgument, view)
	}

	vendors, err := r.repo.ListPersons(ctx, store.PersonFilter{
		Kind:       models.PersonKindVendor,
		ActiveOnly: view != VendorViewAll,
	})
	if err != nil {
		return nil, err
	}

	statuses := []models.AuthorizationStatus{}
	for i := range vendors {
		status, err := r.status(ctx, &vendors[i])
		if err != nil {
			return nil, err
		}
		switch {
		case view == VendorViewAuthorized && !status.IsAuthorized:
			continue
		case view == VendorViewPending && status.IsAuthorized:
			continue
		}
		statuses = append(statuses, *status)
	}
	return statuses, nil
}
