// Package catalog maps commerce product IDs to the Discord roles they
// entitle a purchaser to. The catalog is loaded once at startup and is
// immutable afterwards.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
)

// Product describes the roles one product ID confers.
type Product struct {
	// Roles granted while the product is in PAID status.
	Roles []string `json:"roles"`
	// GrantsAccess marks products whose purchase unlocks full access, as
	// opposed to setup or tracking-only products.
	GrantsAccess bool `json:"grantsAccess"`
}

// Catalog is the static product-to-roles mapping.
type Catalog struct {
	products map[string]Product
}

type catalogFile struct {
	Products map[string]Product `json:"products"`
}

// Load reads the catalog JSON file. Every product must map to at least one
// role name.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var file catalogFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	if len(file.Products) == 0 {
		return nil, fmt.Errorf("catalog %s defines no products", path)
	}
	for id, product := range file.Products {
		if len(product.Roles) == 0 {
			return nil, fmt.Errorf("catalog product %q has no roles", id)
		}
	}

	log.Info().Int("products", len(file.Products)).Str("path", path).Msg("Loaded product catalog")
	return &Catalog{products: file.Products}, nil
}

// New builds a catalog from an in-memory mapping. Used by tests and tooling.
func New(products map[string]Product) *Catalog {
	copied := make(map[string]Product, len(products))
	for id, product := range products {
		copied[id] = product
	}
	return &Catalog{products: copied}
}

// RolesFor returns the role names mapped to productID. Unknown products
// contribute no roles.
func (c *Catalog) RolesFor(productID string) []string {
	product, ok := c.products[productID]
	if !ok {
		return nil
	}
	roles := make([]string, len(product.Roles))
	copy(roles, product.Roles)
	return roles
}

// GrantsAccess reports whether productID unlocks full access when paid.
// Unknown products never grant access.
func (c *Catalog) GrantsAccess(productID string) bool {
	product, ok := c.products[productID]
	return ok && product.GrantsAccess
}

// Known reports whether productID exists in the catalog.
func (c *Catalog) Known(productID string) bool {
	_, ok := c.products[productID]
	return ok
}

// ProductIDs lists all configured product IDs.
func (c *Catalog) ProductIDs() []string {
	ids := make([]string, 0, len(c.products))
	for id := range c.products {
		ids = append(ids, id)
	}
	return ids
}
