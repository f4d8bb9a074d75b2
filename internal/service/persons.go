package service

import (
	"context"
	"fmt"
	"strings"

	"polimarket/internal/models"
	"polimarket/internal/store"
	"polimarket/internal/util"

	"go.uber.org/zap"
)

// PersonDirectory keeps vendor and client records
type PersonDirectory struct {
	repo   store.Transactor
	logger *zap.Logger
}

func NewPersonDirectory(repo store.Transactor) *PersonDirectory {
	return &PersonDirectory{
		repo:   repo,
		logger: util.GetLogger(),
	}
}

type PersonRequest struct {
	Identification string `json:"identification" binding:"required"`
	FirstName      string `json:"first_name" binding:"required"`
	LastName       string `json:"last_name"`
	Email          string `json:"email" binding:"omitempty,email"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	ClientCode     string `json:"client_code"`
	Active         *bool  `json:"active"`
}

func (p *PersonDirectory) Create(ctx context.Context, kind string, req *PersonRequest) (*models.Person, error) {
	ctx, span := util.StartSpan(ctx, "PersonDirectory.Create")
	defer span.End()

	if kind != models.PersonKindVendor && kind != models.PersonKindClient {
		return nil, fmt.Errorf("%w: unknown person kind %q", ErrInvalidArgument, kind)
	}
	if strings.TrimSpace(req.Identification) == "" || strings.TrimSpace(req.FirstName) == "" {
		return nil, fmt.Errorf("%w: identification and first name are required", ErrInvalidArgument)
	}

	person := &models.Person{
		Kind:           kind,
		Identification: req.Identification,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		Phone:          req.Phone,
		Address:        req.Address,
		Active:         req.Active == nil || *req.Active,
	}
	if kind == models.PersonKindClient {
		person.ClientCode = req.ClientCode
	}

	if err := p.repo.CreatePerson(ctx, person); err != nil {
		return nil, err
	}
	p.logger.Info("Person created", zap.String("kind", kind), zap.Int64("id", person.ID))
	return person, nil
}

func (p *PersonDirectory) Get(ctx context.Context, kind string, id int64) (*models.Person, error) {
	ctx, span := util.StartSpan(ctx, "PersonDirectory.Get")
	defer span.End()

	return p.repo.GetPerson(ctx, id, kind)
}

func (p *PersonDirectory) List(ctx context.Context, kind string, activeOnly bool) ([]models.Person, error) {
	ctx, span := util.StartSpan(ctx, "PersonDirectory.List")
	defer span.End()

	return p.repo.ListPersons(ctx, store.PersonFilter{Kind: kind, ActiveOnly: activeOnly})
}

// Update replaces contact data and the active flag. Identification and
// authorization state are not touched.
func (p *PersonDirectory) Update(ctx context.Context, kind string, id int64, req *PersonRequest) (*models.Person, error) {
	ctx, span := util.StartSpan(ctx, "PersonDirectory.Update")
	defer span.End()

	var person *models.Person
	err := p.repo.WithTx(ctx, func(tx store.Repository) error {
		var err error
		person, err = tx.GetPerson(ctx, id, kind)
		if err != nil {
			return err
		}
		person.FirstName = req.FirstName
		person.LastName = req.LastName
		person.Email = req.Email
		person.Phone = req.Phone
		person.Address = req.Address
		if kind == models.PersonKindClient {
			person.ClientCode = req.ClientCode
		}
		if req.Active != nil {
			person.Active = *req.Active
		}
		return tx.UpdatePerson(ctx, person)
	})
	if err != nil {
		return nil, err
	}
	return person, nil
}

// PurchaseHistory lists a client's sales, newest first
func (p *PersonDirectory) PurchaseHistory(ctx context.Context, clientID int64) ([]models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "PersonDirectory.PurchaseHistory")
	defer span.End()

	if _, err := p.repo.GetPerson(ctx, clientID, models.PersonKindClient); err != nil {
		return nil, err
	}
	return p.repo.ListSales(ctx, store.SaleFilter{ClientID: clientID})
}

// VendorSales lists sales registered by a vendor, newest first
func (p *PersonDirectory) VendorSales(ctx context.Context, vendorID int64) ([]models.Sale, error) {
	ctx, span := util.StartSpan(ctx, "PersonDirectory.VendorSales")
	defer span.End()

	if _, err := p.repo.GetPerson(ctx, vendorID, models.PersonKindVendor); err != nil {
		return nil, err
	}
	return p.repo.ListSales(ctx, store.SaleFilter{VendorID: vendorID})
}

// HasActivePurchases reports whether the client has a completed sale
func (p *PersonDirectory) HasActivePurchases(ctx context.Context, clientID int64) (bool, error) {
	sales, err := p.repo.ListSales(ctx, store.SaleFilter{
		ClientID: clientID,
		Status:   models.SaleStatusCompleted,
	})
	if err != nil {
		return false, err
	}
	return len(sales) > 0, nil
}
