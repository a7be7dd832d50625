package main

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/milestone-prints/raceday/internal/extract"
	"github.com/milestone-prints/raceday/internal/model"
	"github.com/milestone-prints/raceday/internal/status"
	"github.com/milestone-prints/raceday/internal/store"
)

var importCSVPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import orders from a marketplace line-item CSV export",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Open(importCSVPath)
		if err != nil {
			return eris.Wrapf(err, "open %s", importCSVPath)
		}
		defer f.Close()

		lineItems, err := readLineItemCSV(f)
		if err != nil {
			return err
		}

		created, skipped, err := importOrders(ctx, env.Store, lineItems)
		if err != nil {
			return err
		}

		zap.L().Info("import complete",
			zap.Int("created", created),
			zap.Int("skipped", skipped),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "orders.csv", "path to the line-item CSV export")
	rootCmd.AddCommand(importCmd)
}

// orderLineItems is one order's rows regrouped into line items, keeping the
// marketplace row order.
type orderLineItems struct {
	OrderNumber string
	Source      model.OrderSource
	Items       []extract.LineItem
}

// csvColumns is the expected header of the line-item export: one row per
// personalization property, grouped by order number and line-item title.
var csvColumns = []string{"order_number", "source", "title", "property_name", "property_value"}

// readLineItemCSV parses the export into per-order line-item bags, keeping
// first-seen order of orders and line items.
func readLineItemCSV(r io.Reader) ([]orderLineItems, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(csvColumns)

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read csv header")
	}
	for i, want := range csvColumns {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return nil, eris.Errorf("unexpected csv header %q at column %d (want %q)", header[i], i+1, want)
		}
	}

	var orders []orderLineItems
	index := map[string]int{}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "read csv row")
		}

		num := strings.TrimSpace(rec[0])
		if num == "" {
			continue
		}

		i, ok := index[num]
		if !ok {
			i = len(orders)
			index[num] = i
			orders = append(orders, orderLineItems{
				OrderNumber: num,
				Source:      orderSource(rec[1]),
			})
		}

		title := strings.TrimSpace(rec[2])
		o := &orders[i]
		if len(o.Items) == 0 || o.Items[len(o.Items)-1].Title != title {
			o.Items = append(o.Items, extract.LineItem{Title: title})
		}
		item := &o.Items[len(o.Items)-1]

		if name := strings.TrimSpace(rec[3]); name != "" {
			item.Properties = append(item.Properties, extract.Property{
				Name:  name,
				Value: strings.TrimSpace(rec[4]),
			})
		}
	}
	return orders, nil
}

// importOrders runs extraction per order and creates rows. Orders already in
// the store are skipped; import is re-runnable over the same export.
func importOrders(ctx context.Context, st store.Store, orders []orderLineItems) (created, skipped int, err error) {
	for _, oli := range orders {
		if _, err := st.GetOrder(ctx, oli.OrderNumber); err == nil {
			skipped++
			continue
		} else if !eris.Is(err, store.ErrNotFound) {
			return created, skipped, err
		}

		res := extract.Extract(oli.Items)

		order := &model.Order{
			OrderNumber: oli.OrderNumber,
			Source:      oli.Source,
			RaceName:    res.RaceName,
			RaceYear:    res.RaceYear,
			RunnerName:  res.RunnerName,
			HadNoTime:   res.HadNoTime,
			Status:      model.OrderStatusPending,
		}
		if res.NeedsAttention {
			_ = status.MarkNeedsAttention(order)
		}
		if res.RawRunnerValue != "" && res.RunnerName == nil {
			order.Notes = "raw personalization: " + res.RawRunnerValue
		}

		if err := st.CreateOrder(ctx, order); err != nil {
			return created, skipped, eris.Wrapf(err, "import order %s", oli.OrderNumber)
		}
		created++

		zap.L().Debug("imported order",
			zap.String("order", order.OrderNumber),
			zap.String("race", order.RaceName),
			zap.String("status", string(order.Status)),
		)
	}
	return created, skipped, nil
}

func orderSource(raw string) model.OrderSource {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "etsy":
		return model.OrderSourceEtsy
	case "shopify":
		return model.OrderSourceShopify
	case "amazon":
		return model.OrderSourceAmazon
	default:
		return model.OrderSourceManual
	}
}
