package valueobject

import (
	"errors"
	"strings"
)

// ContactAddress is a courier-ready address: who to call and where to go.
// Ward and district codes follow the courier's administrative catalogue.
type ContactAddress struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Address    string `json:"address"`
	WardCode   string `json:"ward_code"`
	DistrictID int    `json:"district_id"`
}

// NewContactAddress trims and validates the address
func NewContactAddress(name, phone, address, wardCode string, districtID int) (ContactAddress, error) {
	a := ContactAddress{
		Name:       strings.TrimSpace(name),
		Phone:      strings.TrimSpace(phone),
		Address:    strings.TrimSpace(address),
		WardCode:   strings.TrimSpace(wardCode),
		DistrictID: districtID,
	}
	if err := a.Validate(); err != nil {
		return ContactAddress{}, err
	}
	return a, nil
}

// Validate checks that every field needed for a pickup is present
func (a ContactAddress) Validate() error {
	switch {
	case a.Name == "":
		return errors.New("contact name is required")
	case a.Phone == "":
		return errors.New("contact phone is required")
	case len(a.Phone) > 20:
		return errors.New("contact phone cannot exceed 20 characters")
	case a.Address == "":
		return errors.New("street address is required")
	case a.WardCode == "":
		return errors.New("ward code is required")
	case a.DistrictID <= 0:
		return errors.New("district id must be positive")
	}
	return nil
}

// IsEmpty returns true if no field is set
func (a ContactAddress) IsEmpty() bool {
	return a == ContactAddress{}
}
