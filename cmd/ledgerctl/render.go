package main

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"

	"github.com/hanizaheer02/impact-tracker/internal/audit"
	"github.com/hanizaheer02/impact-tracker/internal/domain"
	"github.com/hanizaheer02/impact-tracker/internal/geo"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderReport(w io.Writer, r audit.Report) {
	t := newTable(w)
	t.SetTitle("Audit at " + r.CheckedAt.Format(time.RFC3339))
	t.AppendHeader(table.Row{"", "Counters", "Baseline", "Ledger"})
	t.AppendRow(table.Row{"Total donations", r.CountersTotal.StringFixed(2), r.BaselineTotal.StringFixed(2), r.LedgerTotal.StringFixed(2)})
	t.AppendRow(table.Row{"Donor count", r.CountersDonors, r.BaselineDonors, r.LedgerCount})
	t.AppendRow(table.Row{"Version", r.CountersVersion, "", r.LedgerCount})
	t.AppendSeparator()
	t.AppendRow(table.Row{"Distinct donors", "", "", r.DistinctDonors})
	t.AppendRow(table.Row{"Last sequence", "", "", r.LastSeq})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	t.Render()

	if !r.Drift {
		fmt.Fprintln(w, "OK: counters match the ledger")
		return
	}
	for _, p := range r.Problems {
		fmt.Fprintln(w, "DRIFT: "+p)
	}
}

func renderDonations(w io.Writer, items []domain.Donation) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No donations recorded.")
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Seq", "Created", "Amount", "Donor", "Region", "Impact", "Country"})
	total := decimal.Zero
	for _, d := range items {
		donor := d.DonorName
		if d.Anonymous {
			donor += " (anonymous)"
		}
		t.AppendRow(table.Row{
			d.Seq,
			d.CreatedAt.Format("2006-01-02 15:04:05"),
			d.Amount.StringFixed(2),
			donor,
			d.Region,
			d.ImpactType,
			d.OriginCountry,
		})
		total = total.Add(d.Amount)
	}
	t.AppendFooter(table.Row{"", "Total", total.StringFixed(2)})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	t.Render()
}

func renderRegions(w io.Writer, dir *geo.Directory) {
	t := newTable(w)
	t.SetTitle("Regions")
	t.AppendHeader(table.Row{"Name", "Lat", "Lng", "Default"})
	def := dir.DefaultRegion().Name
	for _, r := range dir.Regions() {
		mark := ""
		if r.Name == def {
			mark = "*"
		}
		t.AppendRow(table.Row{r.Name, coord(r.Coord.Lat), coord(r.Coord.Lng), mark})
	}
	t.Render()

	o := newTable(w)
	o.SetTitle("Donor origins")
	o.AppendHeader(table.Row{"Rank", "Label", "Lat", "Lng"})
	for i, origin := range dir.Origins() {
		o.AppendRow(table.Row{i, origin.Label, coord(origin.Coord.Lat), coord(origin.Coord.Lng)})
	}
	o.Render()
}

func coord(v float64) string { return fmt.Sprintf("%.2f", v) }
