package testutil

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appreturns "github.com/erp/returns/internal/application/returns"
	"github.com/erp/returns/internal/domain/returns"
)

// ShopActor acts for storeID
func ShopActor(storeID uuid.UUID) returns.Actor {
	return returns.Actor{Kind: returns.ActorShop, UserID: NewTestUUID("shop-user-" + storeID.String()), StoreID: storeID}
}

// CustomerActor acts for customerID
func CustomerActor(customerID uuid.UUID) returns.Actor {
	return returns.Actor{Kind: returns.ActorCustomer, UserID: customerID, CustomerID: customerID}
}

// SystemActor is the internal operator identity
func SystemActor() returns.Actor {
	return returns.Actor{Kind: returns.ActorSystem, UserID: NewTestUUID("system")}
}

// Address returns a courier-ready address in district districtID
func Address(name string, districtID int) appreturns.AddressInput {
	return appreturns.AddressInput{
		Name:       name,
		Phone:      "0901234567",
		Address:    "12 Nguyen Trai",
		WardCode:   "20308",
		DistrictID: districtID,
	}
}

// SubmitRequest builds a valid return for orderID/itemID at storeID
func SubmitRequest(storeID uuid.UUID, orderID, itemID string, reason returns.ReasonType) appreturns.SubmitReturnRequest {
	return appreturns.SubmitReturnRequest{
		StoreID:       storeID,
		OrderID:       orderID,
		ItemID:        itemID,
		ReasonType:    string(reason),
		Reason:        "wrong size",
		ItemPrice:     decimal.NewFromInt(250000),
		Currency:      "VND",
		PickupAddress: Address("Customer", 1442),
	}
}

// PackageInfo builds the shop's packaging details for a small parcel
func PackageInfo() appreturns.PackageInfoRequest {
	return appreturns.PackageInfoRequest{
		WeightKg:      decimal.RequireFromString("0.5"),
		LengthCm:      20,
		WidthCm:       15,
		HeightCm:      10,
		ReturnAddress: Address("Shop", 1443),
	}
}
