package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"reebill/internal/observability/metrics"
	"reebill/internal/reebill/application"
	reebill "reebill/internal/reebill/domain"
	"reebill/internal/reebill/infrastructure/memory"
	utilbill "reebill/internal/utilbill/domain"
	utilbillmemory "reebill/internal/utilbill/infrastructure/memory"
)

const tabPadding = 2

func newComputeCmd(opts *rootOptions) *cobra.Command {
	var discount float64

	cmd := &cobra.Command{
		Use:   "compute FILE",
		Short: "Price an offline bill document",
		Long: "Compute the charges of a YAML bill document, then price its renewable energy " +
			"by evaluating the same charges against the hypothetical register quantities.",
		Example: `  reebill compute bill.yaml
  reebill compute bill.yaml --discount-rate 0.3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readBillDocument(args[0])
			if err != nil {
				return err
			}
			rates := application.Rates{Discount: opts.cfg.DiscountRate, LateCharge: opts.cfg.LateChargeRate}
			if doc.DiscountRate != nil {
				rates.Discount = *doc.DiscountRate
			}
			if cmd.Flags().Changed("discount-rate") {
				rates.Discount = discount
			}
			metrics.Init(nil, opts.logger)
			return runCompute(cmd.Context(), cmd.OutOrStdout(), doc, rates, opts.logger)
		},
	}
	cmd.Flags().Float64Var(&discount, "discount-rate", 0, "override the discount rate")
	return cmd
}

// runCompute prices doc with in-memory repositories. The utility bill
// charges are printed even when the reebill cannot be computed.
func runCompute(ctx context.Context, out io.Writer, doc billDocument, rates application.Rates, logger zerolog.Logger) error {
	ub, err := doc.utilBill("offline-1")
	if err != nil {
		return err
	}
	if err := ub.ComputeCharges(false); err != nil {
		return err
	}
	utilBills := utilbillmemory.NewUtilBillRepository()
	if err := utilBills.Save(ctx, ub); err != nil {
		return err
	}
	src, err := doc.renewableSource()
	if err != nil {
		return err
	}
	svc, err := application.NewService(memory.NewReeBillRepository(), utilBills, memory.NewPaymentRepository(),
		application.WithRenewableSource(src),
		application.WithRates(rates),
		application.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if _, err := svc.CreateNext(ctx, doc.Account, ub.ID()); err != nil {
		return err
	}
	rb, computeErr := svc.Compute(ctx, doc.Account, 1)

	if err := printUtilCharges(out, ub); err != nil {
		return err
	}
	if computeErr != nil {
		return fmt.Errorf("reebill: %w", computeErr)
	}
	fmt.Fprintln(out)
	return printReeBill(out, rb)
}

func printUtilCharges(out io.Writer, ub *utilbill.UtilBill) error {
	w := tabwriter.NewWriter(out, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(w, "Charge\tQuantity\tRate\tTotal\tError")
	fmt.Fprintln(w, "------\t--------\t----\t-----\t-----")
	for _, c := range ub.Charges() {
		quantity, total := "-", "-"
		if q, ok := c.Quantity(); ok {
			quantity = fmt.Sprintf("%.4f", q)
		}
		if t, ok := c.Total(); ok {
			total = fmt.Sprintf("%.2f", t)
		}
		if !c.HasCharge {
			total += " (memo)"
		}
		fmt.Fprintf(w, "%s\t%s\t%g\t%s\t%s\n", c.Binding, quantity, c.Rate, total, c.ErrorMessage())
	}
	fmt.Fprintf(w, "Total\t\t\t%.2f\t\n", ub.TotalCharges())
	return w.Flush()
}

func printReeBill(out io.Writer, rb *reebill.ReeBill) error {
	w := tabwriter.NewWriter(out, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(w, "Register\tConventional\tRenewable\tHypothetical")
	fmt.Fprintln(w, "--------\t------------\t---------\t------------")
	for _, rd := range rb.Readings() {
		fmt.Fprintf(w, "%s\t%g\t%g\t%g\n", rd.RegisterBinding, rd.ConventionalQuantity, rd.RenewableQuantity, rd.HypotheticalQuantity())
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Charge\tActual\tHypothetical\t")
	fmt.Fprintln(w, "------\t------\t------------\t")
	for _, c := range rb.Charges() {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t\n", c.Binding, c.ATotal, c.HTotal)
	}
	fmt.Fprintf(w, "Total\t%.2f\t%.2f\t\n", rb.TotalActualCharges(), rb.TotalHypotheticalCharges())
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Renewable energy\t%g\t\t\n", rb.TotalRenewableEnergy())
	fmt.Fprintf(w, "Renewable value\t%.2f\t\t\n", rb.ReeValue())
	fmt.Fprintf(w, "Discount rate\t%g\t\t\n", rb.DiscountRate())
	fmt.Fprintf(w, "Renewable charge\t%.2f\t\t\n", rb.ReeCharge())
	fmt.Fprintf(w, "Savings\t%.2f\t\t\n", rb.ReeSavings())
	fmt.Fprintf(w, "Balance due\t%.2f\t\t\n", rb.BalanceDue())
	return w.Flush()
}
