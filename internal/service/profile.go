package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/salvagehub/salvagebid/internal/domain"
)

// VendorProfiles is the read side of the vendor trust state: profile,
// tier, rating, and fraud history.
type VendorProfiles struct {
	vendors domain.VendorStore
	flags   domain.FraudFlagStore
}

// NewVendorProfiles creates a VendorProfiles service.
func NewVendorProfiles(vendors domain.VendorStore, flags domain.FraudFlagStore) *VendorProfiles {
	return &VendorProfiles{vendors: vendors, flags: flags}
}

// Get returns one vendor profile.
func (vp *VendorProfiles) Get(ctx context.Context, id uuid.UUID) (domain.Vendor, error) {
	vendor, err := vp.vendors.GetByID(ctx, id)
	if err != nil {
		return domain.Vendor{}, fmt.Errorf("profile: get vendor %s: %w", id, err)
	}
	return vendor, nil
}

// FraudHistory returns a vendor's fraud flags, newest first.
func (vp *VendorProfiles) FraudHistory(ctx context.Context, vendorID uuid.UUID, opts domain.ListOpts) ([]domain.FraudFlag, error) {
	flags, err := vp.flags.ListByVendor(ctx, vendorID, opts)
	if err != nil {
		return nil, fmt.Errorf("profile: fraud history %s: %w", vendorID, err)
	}
	return flags, nil
}
