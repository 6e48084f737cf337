package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"reebill/internal/reebill/application"
)

// withApp wires the services for one command run and releases them after.
func withApp(cmd *cobra.Command, opts *rootOptions, run func(context.Context, *app) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(ctx, a)
}

func newRecomputeCmd(opts *rootOptions) *cobra.Command {
	var (
		accounts []string
		sequence int
	)
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute reebills",
		Long: "Recompute one reebill, or every unissued reebill of the given accounts when " +
			"--sequence is omitted. Accounts are computed concurrently.",
		Example: `  reebill recompute --account 10003 --sequence 4
  reebill recompute --account 10003 --account 10004`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(accounts) == 0 {
				return errors.New("at least one --account is required")
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				var targets []application.Target
				for _, account := range accounts {
					if sequence > 0 {
						targets = append(targets, application.Target{AccountID: account, Sequence: sequence})
						continue
					}
					pending, err := a.reeBills.PendingTargets(ctx, account)
					if err != nil {
						return err
					}
					targets = append(targets, pending...)
				}
				results, err := a.reeBills.ComputeAll(ctx, targets)
				if err != nil {
					return err
				}
				return printComputeResults(cmd.OutOrStdout(), results)
			})
		},
	}
	cmd.Flags().StringSliceVar(&accounts, "account", nil, "account to recompute (repeatable)")
	cmd.Flags().IntVar(&sequence, "sequence", 0, "sequence to recompute (default: all unissued)")
	return cmd
}

func printComputeResults(out io.Writer, results []application.ComputeResult) error {
	w := tabwriter.NewWriter(out, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(w, "Account\tSequence\tVersion\tRenewable charge\tBalance due\tError")
	fmt.Fprintln(w, "-------\t--------\t-------\t----------------\t-----------\t-----")
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "%s\t%d\t-\t-\t-\t%v\n", r.AccountID, r.Sequence, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\t%.2f\t\n", r.AccountID, r.Sequence, r.Bill.Version(), r.Bill.ReeCharge(), r.Bill.BalanceDue())
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reebills failed to compute", failed, len(results))
	}
	return nil
}

// billFlags are the flags naming one reebill sequence.
type billFlags struct {
	account  string
	sequence int
}

func (f *billFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.account, "account", "", "account id")
	cmd.Flags().IntVar(&f.sequence, "sequence", 0, "reebill sequence")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("sequence")
}

func newIssueCmd(opts *rootOptions) *cobra.Command {
	var flags billFlags
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a reebill",
		Long:  "Issue the latest version of a reebill sequence together with the account's pending corrections.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				rb, err := a.reeBills.Issue(ctx, flags.account, flags.sequence)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "issued %s: balance due %.2f, due %s\n",
					rb.Key(), rb.BalanceDue(), rb.DueDate().Format(dateLayout))
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newCorrectCmd(opts *rootOptions) *cobra.Command {
	var flags billFlags
	cmd := &cobra.Command{
		Use:   "correct",
		Short: "Start a correction of an issued reebill",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				rb, err := a.reeBills.CreateCorrection(ctx, flags.account, flags.sequence)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created %s: renewable charge %.2f\n", rb.Key(), rb.ReeCharge())
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newPaymentCmd(opts *rootOptions) *cobra.Command {
	var (
		account     string
		amount      float64
		received    string
		description string
	)
	cmd := &cobra.Command{
		Use:   "payment",
		Short: "Record a payment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			at := time.Now().UTC()
			if received != "" {
				parsed, err := time.Parse(dateLayout, received)
				if err != nil {
					return fmt.Errorf("--date: %w", err)
				}
				at = parsed
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				p, err := a.reeBills.AddPayment(ctx, account, at, amount, description)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded payment %s of %.2f\n", p.ID, p.Credit)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account id")
	cmd.Flags().Float64Var(&amount, "amount", 0, "payment credit")
	cmd.Flags().StringVar(&received, "date", "", "date received, YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&description, "description", "", "payment description")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func newChargesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "charges BILL_ID",
		Short: "Recompute the charges of a stored utility bill",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ub, err := a.utilBills.ComputeCharges(ctx, args[0], false)
				if err != nil {
					return err
				}
				return printUtilCharges(cmd.OutOrStdout(), ub)
			})
		},
	}
}

func newRateClassesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rate-classes",
		Short: "List the rate class catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := loadCatalog(opts.cfg)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, tabPadding, ' ', 0)
			fmt.Fprintln(w, "Name\tUtility\tService\tRegisters")
			fmt.Fprintln(w, "----\t-------\t-------\t---------")
			for _, rc := range catalog.List() {
				var regs []string
				for _, r := range rc.NewRegisters() {
					regs = append(regs, r.Binding)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rc.Name, rc.Utility, rc.ServiceType, strings.Join(regs, ","))
			}
			return w.Flush()
		},
	}
}
