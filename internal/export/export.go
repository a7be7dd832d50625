// Package export writes the operator-facing XLSX order report: one row per
// order with its latest research and cached race facts, for handoff to the
// print team.
package export

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/milestone-prints/raceday/internal/model"
	"github.com/milestone-prints/raceday/internal/store"
)

// Row pairs an order with its research and race context for one report line.
type Row struct {
	Order    model.Order
	Research *model.RunnerResearch
	Race     *model.Race
}

// header is the fixed column layout of the report sheet.
var header = []string{
	"Order Number", "Source", "Status", "Design Status",
	"Race Name", "Race Year", "Race Date", "Location",
	"Runner Name", "Bib", "Official Time", "Pace", "Event",
	"Weather Temp (F)", "Weather", "Research Status", "Notes",
}

// CollectRows loads report rows for every order matching the filter. Orders
// without research or a cached race still produce a row with those columns
// blank.
func CollectRows(ctx context.Context, st store.Store, filter store.OrderFilter) ([]Row, error) {
	orders, err := st.ListOrders(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "export: list orders")
	}

	rows := make([]Row, 0, len(orders))
	for _, o := range orders {
		row := Row{Order: o}

		research, err := st.LatestResearch(ctx, o.ID)
		if err == nil {
			row.Research = research
		} else if !eris.Is(err, store.ErrNotFound) {
			return nil, eris.Wrapf(err, "export: research for order %s", o.OrderNumber)
		}

		if o.RaceYear != nil {
			race, err := st.GetRace(ctx, o.RaceName, *o.RaceYear)
			if err == nil {
				row.Race = race
			} else if !eris.Is(err, store.ErrNotFound) {
				return nil, eris.Wrapf(err, "export: race for order %s", o.OrderNumber)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteOrders writes the report to path.
func WriteOrders(path string, rows []Row) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Orders")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	hr := sheet.AddRow()
	for _, h := range header {
		hr.AddCell().SetString(h)
	}

	for _, row := range rows {
		r := sheet.AddRow()
		for _, cell := range cells(row) {
			r.AddCell().SetString(cell)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func cells(row Row) []string {
	o := row.Order

	out := make([]string, 0, len(header))
	out = append(out,
		o.OrderNumber,
		string(o.Source),
		string(o.Status),
		designCell(o.DesignStatus),
		o.RaceName,
		yearCell(o.RaceYear),
	)

	if row.Race != nil && row.Race.RaceDate != nil {
		out = append(out, row.Race.RaceDate.Format("2006-01-02"))
	} else {
		out = append(out, "")
	}
	if row.Race != nil {
		out = append(out, row.Race.Location)
	} else {
		out = append(out, "")
	}

	if o.RunnerName != nil {
		out = append(out, *o.RunnerName)
	} else {
		out = append(out, "")
	}

	if r := row.Research; r != nil {
		out = append(out, r.BibNumber, r.OfficialTime, r.OfficialPace, r.EventType)
	} else {
		out = append(out, "", "", "", "")
	}

	if row.Race != nil && row.Race.WeatherTemp != nil {
		out = append(out, fmt.Sprintf("%.1f", *row.Race.WeatherTemp))
	} else {
		out = append(out, "")
	}
	if row.Race != nil && row.Race.WeatherCondition != nil {
		out = append(out, string(*row.Race.WeatherCondition))
	} else {
		out = append(out, "")
	}

	if r := row.Research; r != nil {
		out = append(out, string(r.ResearchStatus), r.ResearchNotes)
	} else {
		out = append(out, "", o.Notes)
	}
	return out
}

func designCell(d *model.DesignStatus) string {
	if d == nil {
		return ""
	}
	return string(*d)
}

func yearCell(y *int) string {
	if y == nil {
		return ""
	}
	return strconv.Itoa(*y)
}
