package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rigshare/internal/domain/shared/money"
)

func TestSplitRentalFees(t *testing.T) {
	split, err := SplitRental(money.Must(10000, "USD"), money.Must(1000, "USD"))
	require.NoError(t, err)

	require.Equal(t, "110.00", split.Subtotal.String())
	require.Equal(t, "14.19", split.RenterFee.String())
	require.Equal(t, "14.19", split.HostFee.String())
	require.Equal(t, "124.19", split.CustomerTotal.String())
	require.Equal(t, "95.81", split.HostReceives.String())
	require.Equal(t, "28.38", split.PlatformFee.String())
}

func TestSplitRentalWithoutDelivery(t *testing.T) {
	split, err := SplitRental(money.Must(5000, "USD"), money.Money{})
	require.NoError(t, err)
	require.Equal(t, int64(5000), split.Subtotal.Amount)
	require.Equal(t, "USD", split.PlatformFee.Currency)
}

func TestSplitRentalRoundsHalfUp(t *testing.T) {
	// 0.129 * 50 cents = 6.45 cents
	split, err := SplitRental(money.Must(50, "USD"), money.Must(0, "USD"))
	require.NoError(t, err)
	require.Equal(t, int64(6), split.RenterFee.Amount)

	// 0.129 * 1550 cents = 199.95 cents
	split, err = SplitRental(money.Must(1550, "USD"), money.Must(0, "USD"))
	require.NoError(t, err)
	require.Equal(t, int64(200), split.RenterFee.Amount)
}

func TestSplitRentalIdentities(t *testing.T) {
	for base := int64(0); base <= 250000; base += 1337 {
		for _, delivery := range []int64{0, 1, 99, 2500, 12345} {
			split, err := SplitRental(money.Must(base, "USD"), money.Must(delivery, "USD"))
			require.NoError(t, err)
			require.Equal(t, split.PlatformFee.Amount, split.RenterFee.Amount+split.HostFee.Amount)
			require.Equal(t, base+delivery, split.CustomerTotal.Amount-split.RenterFee.Amount)
			require.Equal(t, split.HostReceives.Amount, split.CustomerTotal.Amount-split.PlatformFee.Amount)
		}
	}
}

func TestSplitRentalRejectsNegative(t *testing.T) {
	_, err := SplitRental(money.Must(-1, "USD"), money.Must(0, "USD"))
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestSplitSaleSellerPaidFreight(t *testing.T) {
	split, err := SplitSale(money.Must(100000, "USD"), money.Must(5000, "USD"), true)
	require.NoError(t, err)
	require.Equal(t, "1000.00", split.CustomerTotal.String())
	require.Equal(t, "150.00", split.SellerFee.String())
	require.Equal(t, "50.00", split.FreightDeduction.String())
	require.Equal(t, "800.00", split.SellerReceives.String())
	require.Equal(t, split.SellerFee, split.PlatformFee())
}

func TestSplitSaleBuyerPaidFreight(t *testing.T) {
	split, err := SplitSale(money.Must(100000, "USD"), money.Must(5000, "USD"), false)
	require.NoError(t, err)
	require.Equal(t, "1050.00", split.CustomerTotal.String())
	require.True(t, split.FreightDeduction.IsZero())
	require.Equal(t, "850.00", split.SellerReceives.String())
}

func TestSplitSaleIdentity(t *testing.T) {
	for sale := int64(0); sale <= 500000; sale += 4321 {
		for _, freight := range []int64{0, 750, 15000} {
			for _, sellerPaid := range []bool{true, false} {
				split, err := SplitSale(money.Must(sale, "USD"), money.Must(freight, "USD"), sellerPaid)
				require.NoError(t, err)
				require.Equal(t, sale-split.SellerFee.Amount-split.FreightDeduction.Amount, split.SellerReceives.Amount)
				if !sellerPaid {
					require.True(t, split.FreightDeduction.IsZero())
				}
			}
		}
	}
}

func TestSplitSaleCurrencyMismatch(t *testing.T) {
	_, err := SplitSale(money.Must(100, "USD"), money.Must(100, "EUR"), false)
	require.ErrorIs(t, err, money.ErrCurrencyMismatch)
}
