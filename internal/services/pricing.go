package services

import (
	"errors"

	"cidbank/internal/store"
)

var ErrUnknownPackage = errors.New("unknown package")

// Catalog is an immutable pricing snapshot. Callers load one and pass it
// into each purchase decision; prices are never read from shared mutable
// state mid-request.
type Catalog struct {
	Version  int64
	byID     map[string]store.Package
	packages []store.Package
}

func NewCatalog(version int64, packages []store.Package) *Catalog {
	byID := make(map[string]store.Package, len(packages))
	for _, pkg := range packages {
		byID[pkg.ID] = pkg
	}
	ordered := make([]store.Package, len(packages))
	copy(ordered, packages)
	return &Catalog{Version: version, byID: byID, packages: ordered}
}

func (c *Catalog) Get(packageID string) (store.Package, error) {
	pkg, ok := c.byID[packageID]
	if !ok {
		return store.Package{}, ErrUnknownPackage
	}
	return pkg, nil
}

// Price returns the unit count and cost for a package id.
func (c *Catalog) Price(packageID string) (int64, int64, error) {
	pkg, err := c.Get(packageID)
	if err != nil {
		return 0, 0, err
	}
	return pkg.CIDUnits, pkg.PriceMinor, nil
}

func (c *Catalog) Packages() []store.Package {
	return c.packages
}
