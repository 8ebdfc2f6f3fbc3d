package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/querypipe/querypipe/internal/PL"
	"github.com/querypipe/querypipe/pkg/querypipe"
)

const (
	tblOrders    int32 = 1
	tblCustomers int32 = 2
	idxOrderCust int32 = 1
)

var ordersSchema = &PL.Schema{Cols: []PL.Column{
	{Name: "order_id", Type: PL.TypeInt},
	{Name: "cust_id", Type: PL.TypeInt},
	{Name: "amount", Type: PL.TypeFloat},
	{Name: "status", Type: PL.TypeStr},
}}

var customersSchema = &PL.Schema{Cols: []PL.Column{
	{Name: "cust_id", Type: PL.TypeInt},
	{Name: "name", Type: PL.TypeStr},
}}

// seedDemo fills the demo database with a small order book.
func seedDemo(db *querypipe.DB, orders int) error {
	if err := db.CreateTable(tblOrders, "orders", ordersSchema.Width()); err != nil {
		return err
	}
	if err := db.CreateTable(tblCustomers, "customers", customersSchema.Width()); err != nil {
		return err
	}
	if err := db.CreateIndex(tblOrders, idxOrderCust, 1); err != nil {
		return err
	}

	names := []string{"ada", "grace", "edsger", "barbara", "donald"}
	for i, n := range names {
		if err := db.Load(tblCustomers, []querypipe.Value{
			querypipe.Int(int64(i + 1)), querypipe.Str(n),
		}); err != nil {
			return err
		}
	}
	statuses := []string{"open", "paid", "void"}
	for i := 0; i < orders; i++ {
		row := []querypipe.Value{
			querypipe.Int(int64(i + 1)),
			querypipe.Int(int64(i%len(names) + 1)),
			querypipe.Float(float64((i*37)%1000) + 0.5),
			querypipe.Str(statuses[i%len(statuses)]),
		}
		if err := db.Load(tblOrders, row); err != nil {
			return err
		}
	}
	return nil
}

// demoPlans are the showcase queries, built directly as physical plans.
func demoPlans() []struct {
	title string
	plan  PL.Node
} {
	scan := func() *PL.SeqScan {
		return &PL.SeqScan{TableID: tblOrders, TableName: "orders", TableSchema: ordersSchema}
	}
	return []struct {
		title string
		plan  PL.Node
	}{
		{
			title: "paid orders over 500",
			plan: &PL.SeqScan{
				TableID: tblOrders, TableName: "orders", TableSchema: ordersSchema,
				Predicate: &PL.Logic{Op: PL.LogicAnd,
					L: &PL.Cmp{Op: PL.CmpEq, L: &PL.ColumnRef{Idx: 3}, R: &PL.Const{Val: PL.StrDatum("paid")}},
					R: &PL.Cmp{Op: PL.CmpGt, L: &PL.ColumnRef{Idx: 2}, R: &PL.Const{Val: PL.FloatDatum(500)}},
				},
			},
		},
		{
			title: "revenue per customer",
			plan: &PL.Aggregate{
				Input:   scan(),
				GroupBy: []PL.Expr{&PL.ColumnRef{Idx: 1}},
				Aggs: []PL.AggSpec{
					{Kind: PL.AggCountStar},
					{Kind: PL.AggSum, Arg: &PL.ColumnRef{Idx: 2}},
				},
			},
		},
		{
			title: "top 3 orders with customer name",
			plan: &PL.Limit{
				Count: 3,
				Input: &PL.OrderBy{
					Keys: []PL.SortKey{{Expr: &PL.ColumnRef{Idx: 4}, Desc: true}},
					Input: &PL.HashJoin{
						Build: &PL.SeqScan{TableID: tblCustomers, TableName: "customers", TableSchema: customersSchema},
						Probe: scan(),
						BuildKeys: []PL.Expr{&PL.ColumnRef{Idx: 0}},
						ProbeKeys: []PL.Expr{&PL.ColumnRef{Idx: 1}},
					},
				},
			},
		},
	}
}

func newDemoCmd() *cobra.Command {
	var rows int
	var workers int
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "run the built-in showcase queries against a seeded in-memory database",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := querypipe.New()
			if err := seedDemo(db, rows); err != nil {
				return err
			}
			fmt.Printf("seeded %s orders\n\n", humanize.Comma(int64(rows)))

			for _, q := range demoPlans() {
				start := time.Now()
				res, err := db.Exec(cmd.Context(), q.plan, querypipe.WithWorkers(workers))
				if err != nil {
					return err
				}
				fmt.Printf("-- %s (%s rows, %s)\n", q.title,
					humanize.Comma(res.Status.RowsEmitted), time.Since(start).Round(time.Microsecond))
				renderResult(res)
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&rows, "rows", 1000, "number of demo order rows to seed")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "parallel scan workers")
	return cmd
}

func renderResult(res *querypipe.Result) {
	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader(res.Cols)
	tw.SetAutoFormatHeaders(false)
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		tw.Append(cells)
	}
	tw.Render()
}
