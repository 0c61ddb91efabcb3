package cart

import (
	"context"
	"testing"

	"checkout-service/internal/util"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func visionSense() Item {
	return Item{
		ID:            "prod_visionsense",
		Name:          "VisionSense",
		Price:         dec("945"),
		OriginalPrice: dec("1050"),
		Image:         "/images/visionsense.jpg",
		PriceID:       "price_visionsense",
		Mode:          "payment",
	}
}

func newTestCart(t *testing.T) (*Cart, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return Load(context.Background(), store, DefaultCatalog(), "cart-1"), store
}

func TestAddItemTwiceIncrementsQuantity(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t)

	require.NoError(t, c.AddItem(ctx, visionSense()))
	require.NoError(t, c.AddItem(ctx, visionSense()))

	items := c.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, 2, c.TotalItems())
}

func TestRemoveItemIsNoOpWhenAbsent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t)

	require.NoError(t, c.AddItem(ctx, visionSense()))
	require.NoError(t, c.RemoveItem(ctx, "does-not-exist"))
	assert.Len(t, c.Items(), 1)

	require.NoError(t, c.RemoveItem(ctx, "prod_visionsense"))
	assert.Empty(t, c.Items())
}

func TestUpdateQuantityZeroRemovesItem(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t)

	require.NoError(t, c.AddItem(ctx, visionSense()))
	require.NoError(t, c.UpdateQuantity(ctx, "prod_visionsense", 0))
	assert.Empty(t, c.Items())

	require.NoError(t, c.AddItem(ctx, visionSense()))
	require.NoError(t, c.UpdateQuantity(ctx, "prod_visionsense", 3))
	assert.Equal(t, 3, c.Items()[0].Quantity)
}

func TestSubtotalSavingsAndFinalTotal(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t)

	require.NoError(t, c.AddItem(ctx, visionSense()))

	assert.True(t, c.Subtotal().Equal(dec("945")))
	assert.True(t, c.Savings().Equal(dec("105")))

	ok, err := c.ApplyDiscountCode(ctx, "STUDENT25")
	require.NoError(t, err)
	require.True(t, ok)

	// min(945*0.25, 300) = 236.25 -> final 708.75
	assert.True(t, c.DiscountAmount().Equal(dec("236.25")), "got %s", c.DiscountAmount())
	assert.True(t, c.FinalTotal().Equal(dec("708.75")), "got %s", c.FinalTotal())
}

func TestApplyDiscountCodeUnknown(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t)

	require.NoError(t, c.AddItem(ctx, visionSense()))

	ok, err := c.ApplyDiscountCode(ctx, "BOGUS")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, c.Discount())
}

func TestApplyDiscountCodeBelowMinimumLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t)

	item := visionSense()
	item.Price = dec("150")
	require.NoError(t, c.AddItem(ctx, item))

	ok, err := c.ApplyDiscountCode(ctx, "WELCOME10")
	require.NoError(t, err)
	require.True(t, ok)

	// SAVE50 needs a $500 subtotal; the previously active code must survive.
	ok, err = c.ApplyDiscountCode(ctx, "SAVE50")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NotNil(t, c.Discount())
	assert.Equal(t, "WELCOME10", c.Discount().Code)
}

func TestApplyDiscountCodeReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t)

	require.NoError(t, c.AddItem(ctx, visionSense()))

	ok, err := c.ApplyDiscountCode(ctx, "WELCOME10")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.ApplyDiscountCode(ctx, "STUDENT25")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "STUDENT25", c.Discount().Code)
}

func TestRemoveDiscountCode(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t)

	require.NoError(t, c.AddItem(ctx, visionSense()))
	ok, err := c.ApplyDiscountCode(ctx, "WELCOME10")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.RemoveDiscountCode(ctx))
	assert.Nil(t, c.Discount())
	assert.True(t, c.DiscountAmount().IsZero())
}

func TestClearCart(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t)

	require.NoError(t, c.AddItem(ctx, visionSense()))
	ok, err := c.ApplyDiscountCode(ctx, "WELCOME10")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Clear(ctx))
	assert.Empty(t, c.Items())
	assert.Nil(t, c.Discount())
	assert.True(t, c.FinalTotal().IsZero())
}

func TestCartRoundTripThroughStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	catalog := DefaultCatalog()

	c := Load(ctx, store, catalog, "cart-rt")
	require.NoError(t, c.AddItem(ctx, visionSense()))
	require.NoError(t, c.UpdateQuantity(ctx, "prod_visionsense", 2))
	ok, err := c.ApplyDiscountCode(ctx, "STUDENT25")
	require.NoError(t, err)
	require.True(t, ok)

	reloaded := Load(ctx, store, catalog, "cart-rt")
	require.Len(t, reloaded.Items(), 1)
	assert.Equal(t, c.Items(), reloaded.Items())
	require.NotNil(t, reloaded.Discount())
	assert.Equal(t, "STUDENT25", reloaded.Discount().Code)
	assert.True(t, c.FinalTotal().Equal(reloaded.FinalTotal()))
}

func TestLoadToleratesMalformedStoredData(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetRawItems("cart-bad", []byte("{not json"))

	c := Load(ctx, store, DefaultCatalog(), "cart-bad")
	assert.Empty(t, c.Items())
	assert.True(t, c.Subtotal().IsZero())

	// The cart remains usable after falling back to empty state.
	require.NoError(t, c.AddItem(ctx, visionSense()))
	assert.Len(t, c.Items(), 1)
}

func TestFinalTotalNeverNegative(t *testing.T) {
	ctx := context.Background()
	catalog := Catalog{
		"MEGA": {Code: "MEGA", Kind: DiscountKindFixed, Value: dec("100000")},
	}
	store := NewMemoryStore()
	c := Load(ctx, store, catalog, "cart-neg")

	require.NoError(t, c.AddItem(ctx, visionSense()))
	ok, err := c.ApplyDiscountCode(ctx, "MEGA")
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, c.DiscountAmount().Equal(c.Subtotal()))
	assert.True(t, c.FinalTotal().IsZero())
}

func TestApplyDiscountCodeCountsOncePerOutcome(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCart(t)
	require.NoError(t, c.AddItem(ctx, visionSense()))

	applied := testutil.ToFloat64(util.DiscountsAppliedTotal.WithLabelValues("applied"))
	unknown := testutil.ToFloat64(util.DiscountsAppliedTotal.WithLabelValues("unknown_code"))

	ok, err := c.ApplyDiscountCode(ctx, "STUDENT25")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.ApplyDiscountCode(ctx, "NOPE")
	require.NoError(t, err)
	require.False(t, ok)

	assert.Equal(t, applied+1, testutil.ToFloat64(util.DiscountsAppliedTotal.WithLabelValues("applied")))
	assert.Equal(t, unknown+1, testutil.ToFloat64(util.DiscountsAppliedTotal.WithLabelValues("unknown_code")))
}
