package valueobject

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCurrency(t *testing.T) {
	tests := []struct {
		in      string
		want    Currency
		wantErr bool
	}{
		{"", VND, false},
		{"vnd", VND, false},
		{" USD ", USD, false},
		{"EUR", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCurrency(tt.in)
			if tt.wantErr {
				assert.ErrorContains(t, err, "unsupported currency")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoney(t *testing.T) {
	t.Run("rejects negative amounts", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromInt(-1), VND)
		assert.ErrorContains(t, err, "negative")
	})

	t.Run("adds same currency", func(t *testing.T) {
		sum, err := NewVND(decimal.NewFromInt(500000)).Add(NewVND(decimal.NewFromInt(25000)))
		require.NoError(t, err)
		assert.True(t, sum.Equals(NewVND(decimal.NewFromInt(525000))))
	})

	t.Run("refuses mixed currency", func(t *testing.T) {
		usd, err := NewMoney(decimal.NewFromInt(10), USD)
		require.NoError(t, err)
		_, err = NewVND(decimal.NewFromInt(1)).Add(usd)
		assert.ErrorContains(t, err, "cannot add USD to VND")
	})

	t.Run("settles to minor units", func(t *testing.T) {
		vnd := NewVND(decimal.RequireFromString("199999.5"))
		assert.Equal(t, "200000", vnd.Settled().String())

		usd, err := NewMoney(decimal.RequireFromString("12.345"), USD)
		require.NoError(t, err)
		assert.Equal(t, "12.35", usd.Settled().String())
	})

	t.Run("json keeps the amount exact", func(t *testing.T) {
		data, err := json.Marshal(NewVND(decimal.NewFromInt(500000)))
		require.NoError(t, err)
		assert.JSONEq(t, `{"amount":"500000","currency":"VND"}`, string(data))

		var m Money
		require.NoError(t, json.Unmarshal(data, &m))
		assert.True(t, m.Equals(NewVND(decimal.NewFromInt(500000))))

		assert.Error(t, json.Unmarshal([]byte(`{"amount":"5","currency":"EUR"}`), &m))
	})
}

func TestContactAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    ContactAddress
		wantErr string
	}{
		{"valid", ContactAddress{Name: "An", Phone: "0901234567", Address: "12 Ly Thuong Kiet", WardCode: "20308", DistrictID: 1444}, ""},
		{"missing name", ContactAddress{Phone: "0901234567", Address: "x", WardCode: "1", DistrictID: 1}, "name"},
		{"missing ward", ContactAddress{Name: "An", Phone: "0901234567", Address: "x", DistrictID: 1}, "ward"},
		{"bad district", ContactAddress{Name: "An", Phone: "0901234567", Address: "x", WardCode: "1"}, "district"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.addr.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	a, err := NewContactAddress("  An ", " 0901234567", "12 Ly Thuong Kiet ", "20308", 1444)
	require.NoError(t, err)
	assert.Equal(t, "An", a.Name)
	assert.False(t, a.IsEmpty())
}
