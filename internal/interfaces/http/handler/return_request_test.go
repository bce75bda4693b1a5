package handler

import (
	"errors"
	"net/http"
	"testing"

	appreturns "github.com/erp/returns/internal/application/returns"
	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/interfaces/http/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestReturnRequestHandler_Submit(t *testing.T) {
	t.Run("customer opens a pending request", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(t, http.MethodPost, "/returns", f.submitBody("SKU-1"), &f.customer)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var resp appreturns.ReturnRequestResponse
		env := decode(t, w, &resp)
		assert.True(t, env.Success)
		assert.Equal(t, string(returns.StatusPending), resp.Status)
		assert.Equal(t, f.customer.CustomerID, resp.CustomerID)
		assert.Equal(t, "500000", resp.ItemPrice.String())
	})

	t.Run("second active request for the item is a conflict", func(t *testing.T) {
		f := newAPIFixture(t)
		f.submit(t, "SKU-1")

		w := f.do(t, http.MethodPost, "/returns", f.submitBody("SKU-1"), &f.customer)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeDuplicateActiveReturn, decode(t, w, nil).Error.Code)
	})

	t.Run("shop cannot submit", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(t, http.MethodPost, "/returns", f.submitBody("SKU-1"), &f.shop)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing fields are reported per field", func(t *testing.T) {
		f := newAPIFixture(t)
		body := f.submitBody("SKU-1")
		body.ReasonType = "BROKEN"
		body.PickupAddress.Phone = ""

		w := f.do(t, http.MethodPost, "/returns", body, &f.customer)
		require.Equal(t, http.StatusBadRequest, w.Code)
		env := decode(t, w, nil)
		assert.Equal(t, dto.ErrCodeValidation, env.Error.Code)
		fields := make([]string, 0, len(env.Error.Details))
		for _, d := range env.Error.Details {
			fields = append(fields, d.Field)
		}
		assert.Contains(t, fields, "reason_type")
		assert.Contains(t, fields, "phone")
	})

	t.Run("malformed json", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(t, http.MethodPost, "/returns", `{"store_id":`, &f.customer)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, decode(t, w, nil).Error.Code)
	})

	t.Run("anonymous caller is rejected", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(t, http.MethodPost, "/returns", f.submitBody("SKU-1"), nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestReturnRequestHandler_ShopDecisions(t *testing.T) {
	t.Run("approve then reject is an invalid transition", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.submit(t, "SKU-1")

		w := f.do(t, http.MethodPost, "/returns/"+id.String()+"/approve", nil, &f.shop)
		require.Equal(t, http.StatusOK, w.Code)
		var resp appreturns.ReturnRequestResponse
		decode(t, w, &resp)
		assert.Equal(t, string(returns.StatusApproved), resp.Status)

		w = f.do(t, http.MethodPost, "/returns/"+id.String()+"/reject", appreturns.ReasonRequest{Reason: "late"}, &f.shop)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidTransition, decode(t, w, nil).Error.Code)
	})

	t.Run("reject needs a reason", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.submit(t, "SKU-1")
		w := f.do(t, http.MethodPost, "/returns/"+id.String()+"/reject", map[string]string{}, &f.shop)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("another store is forbidden", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.submit(t, "SKU-1")
		other := returns.Actor{Kind: returns.ActorShop, UserID: uuid.New(), StoreID: uuid.New()}
		w := f.do(t, http.MethodPost, "/returns/"+id.String()+"/approve", nil, &other)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("refund without return resolves the request", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.submit(t, "SKU-1")
		w := f.do(t, http.MethodPost, "/returns/"+id.String()+"/refund-without-return", nil, &f.shop)
		require.Equal(t, http.StatusOK, w.Code)
		var resp appreturns.ReturnRequestResponse
		decode(t, w, &resp)
		assert.Equal(t, string(returns.StatusRefunded), resp.Status)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(t, http.MethodPost, "/returns/"+uuid.NewString()+"/approve", nil, &f.shop)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		f := newAPIFixture(t)
		w := f.do(t, http.MethodPost, "/returns/not-a-uuid/approve", nil, &f.shop)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReturnRequestHandler_Cancel(t *testing.T) {
	f := newAPIFixture(t)
	id := f.submit(t, "SKU-1")

	w := f.do(t, http.MethodPost, "/returns/"+id.String()+"/cancel", nil, &f.shop)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/returns/"+id.String()+"/cancel", nil, &f.customer)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp appreturns.ReturnRequestResponse
	decode(t, w, &resp)
	assert.Equal(t, string(returns.StatusCancelled), resp.Status)
}

func TestReturnRequestHandler_SubmitPackage(t *testing.T) {
	t.Run("books the courier", func(t *testing.T) {
		f := newAPIFixture(t)
		f.ship(t, "GHN-100")
		f.courier.AssertExpectations(t)
	})

	t.Run("courier failure is a bad gateway and keeps the request approved", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.submit(t, "SKU-1")
		require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/returns/"+id.String()+"/approve", nil, &f.shop).Code)

		f.courier.On("CreateShipment", mock.Anything, mock.Anything).Return("", errors.New("ghn down")).Once()
		w := f.do(t, http.MethodPost, "/returns/"+id.String()+"/package", packageBody(), &f.shop)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, dto.ErrCodeCourierGateway, decode(t, w, nil).Error.Code)

		w = f.do(t, http.MethodGet, "/returns/"+id.String(), nil, &f.shop)
		var resp appreturns.ReturnRequestResponse
		decode(t, w, &resp)
		assert.Equal(t, string(returns.StatusApproved), resp.Status)

		f.courier.On("CreateShipment", mock.Anything, mock.Anything).Return("GHN-101", nil).Once()
		w = f.do(t, http.MethodPost, "/returns/"+id.String()+"/shipment/retry", nil, &f.shop)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		decode(t, w, &resp)
		assert.Equal(t, string(returns.StatusShipping), resp.Status)
	})

	t.Run("pick shift must be positive", func(t *testing.T) {
		f := newAPIFixture(t)
		id := f.submit(t, "SKU-1")
		body := packageBody()
		body.PickShiftID = -1
		w := f.do(t, http.MethodPost, "/returns/"+id.String()+"/package", body, &f.shop)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReturnRequestHandler_Reads(t *testing.T) {
	f := newAPIFixture(t)
	first := f.submit(t, "SKU-1")
	f.submit(t, "SKU-2")
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/returns/"+first.String()+"/approve", nil, &f.shop).Code)

	t.Run("get as owner", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/returns/"+first.String(), nil, &f.customer)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("get as stranger", func(t *testing.T) {
		stranger := returns.Actor{Kind: returns.ActorCustomer, UserID: uuid.New(), CustomerID: uuid.New()}
		w := f.do(t, http.MethodGet, "/returns/"+first.String(), nil, &stranger)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("list filters by status and pages", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/stores/"+f.storeID.String()+"/returns?status=PENDING&page=1&page_size=10", nil, &f.shop)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var items []appreturns.ReturnRequestListItemResponse
		env := decode(t, w, &items)
		require.Len(t, items, 1)
		assert.Equal(t, "SKU-2", items[0].ItemID)
		require.NotNil(t, env.Meta)
		assert.Equal(t, int64(1), env.Meta.Total)
	})

	t.Run("list rejects unknown status", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/stores/"+f.storeID.String()+"/returns?status=LOST", nil, &f.shop)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("summary counts per status", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/stores/"+f.storeID.String()+"/returns/summary", nil, &f.shop)
		require.Equal(t, http.StatusOK, w.Code)
		var summary appreturns.StatusSummaryResponse
		decode(t, w, &summary)
		assert.Equal(t, int64(2), summary.Total)
		assert.Equal(t, int64(1), summary.Counts[string(returns.StatusPending)])
		assert.Equal(t, int64(1), summary.Counts[string(returns.StatusApproved)])
	})

	t.Run("summary of another store is forbidden", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/stores/"+uuid.NewString()+"/returns/summary", nil, &f.shop)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("export is an xlsx attachment", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/stores/"+f.storeID.String()+"/returns/export", nil, &f.shop)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "returns-"+f.storeID.String()[:8])
		// xlsx files are zip archives
		assert.Equal(t, "PK", w.Body.String()[:2])
	})
}

func TestReturnRequestHandler_PickShifts(t *testing.T) {
	t.Run("lists shifts", func(t *testing.T) {
		f := newAPIFixture(t)
		f.courier.On("ListPickShifts", mock.Anything).Return([]returns.PickShift{{ID: 2, Title: "Ca chiều"}}, nil).Once()

		w := f.do(t, http.MethodGet, "/courier/pick-shifts", nil, &f.shop)
		require.Equal(t, http.StatusOK, w.Code)
		var shifts []returns.PickShift
		decode(t, w, &shifts)
		require.Len(t, shifts, 1)
		assert.Equal(t, 2, shifts[0].ID)
	})

	t.Run("courier outage", func(t *testing.T) {
		f := newAPIFixture(t)
		f.courier.On("ListPickShifts", mock.Anything).Return(nil, &returns.CourierError{Op: "pick_shifts", Err: errors.New("timeout")}).Once()

		w := f.do(t, http.MethodGet, "/courier/pick-shifts", nil, &f.shop)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}
