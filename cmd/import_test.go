package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milestone-prints/raceday/internal/model"
	"github.com/milestone-prints/raceday/internal/store"
)

const sampleCSV = `order_number,source,title,property_name,property_value
ETSY-1001,etsy,Chicago Marathon Race Print,Runner Name,Mallory Girvin
ETSY-1001,etsy,Chicago Marathon Race Print,Race Year,2024
SHOP-7,shopify,Boston Marathon Print,Runner Name,Jane Roe
,etsy,Ignored Print,Runner Name,Nobody
MAN-1,fax,Big Sur Marathon Print,,
`

func TestReadLineItemCSV(t *testing.T) {
	orders, err := readLineItemCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, orders, 3)

	first := orders[0]
	assert.Equal(t, "ETSY-1001", first.OrderNumber)
	assert.Equal(t, model.OrderSourceEtsy, first.Source)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "Chicago Marathon Race Print", first.Items[0].Title)
	require.Len(t, first.Items[0].Properties, 2)
	assert.Equal(t, "Race Year", first.Items[0].Properties[1].Name)
	assert.Equal(t, "2024", first.Items[0].Properties[1].Value)

	assert.Equal(t, model.OrderSourceShopify, orders[1].Source)

	// Unknown sources fall back to manual; blank property rows still carry
	// the title through.
	third := orders[2]
	assert.Equal(t, model.OrderSourceManual, third.Source)
	require.Len(t, third.Items, 1)
	assert.Empty(t, third.Items[0].Properties)
}

func TestReadLineItemCSV_BadHeader(t *testing.T) {
	_, err := readLineItemCSV(strings.NewReader("order,source,title,name,value\nA-1,etsy,T,N,V\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected csv header")
}

func TestImportOrders(t *testing.T) {
	ctx := context.Background()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Migrate(ctx))

	orders, err := readLineItemCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)

	created, skipped, err := importOrders(ctx, st, orders)
	require.NoError(t, err)
	assert.Equal(t, 3, created)
	assert.Zero(t, skipped)

	full, err := st.GetOrder(ctx, "ETSY-1001")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, full.Status)
	assert.Equal(t, "Chicago Marathon", full.RaceName)
	require.NotNil(t, full.RunnerName)
	assert.Equal(t, "Mallory Girvin", *full.RunnerName)
	require.NotNil(t, full.RaceYear)
	assert.Equal(t, 2024, *full.RaceYear)

	// No year property and no legacy trailing year routes to missing_year.
	partial, err := st.GetOrder(ctx, "SHOP-7")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusMissingYear, partial.Status)
	assert.Nil(t, partial.RaceYear)

	// Re-running the same export is a no-op.
	created, skipped, err = importOrders(ctx, st, orders)
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Equal(t, 3, skipped)
}
