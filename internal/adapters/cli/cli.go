package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fulfillment-orchestrator/internal/app"
	"fulfillment-orchestrator/internal/core"
)

// ErrUsage is returned for a missing or malformed command line.
var ErrUsage = errors.New("usage")

const usage = `Available commands:
  plan <orderID> [policy]         print the fulfillment plan as JSON
  execute <orderID>               read a plan from stdin and commit it
  plans <orderID>...              plan several orders at once
  stock <productID> <warehouse>   print availability (pairs repeat)
  advance <kind> <docID> <status> move a document to a new status
  schema                          print the plan JSON Schema`

// Run executes a one-shot CLI command against companyCode.
// args is os.Args[1:]; the first element is the subcommand name.
func Run(ctx context.Context, svc app.ApplicationService, companyCode string, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given\n%s", ErrUsage, usage)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")

	switch args[0] {
	case "plan", "p":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("%w: plan <orderID> [policy]", ErrUsage)
		}
		orderID, err := parseID(args[1])
		if err != nil {
			return err
		}
		req := app.GeneratePlanRequest{CompanyCode: companyCode, OrderID: orderID}
		if len(args) == 3 {
			req.PolicyOverride = args[2]
		}
		result, err := svc.GeneratePlan(ctx, req)
		if err != nil {
			return fmt.Errorf("plan failed: %w", err)
		}
		return enc.Encode(result.Plan)

	case "execute", "exec", "x":
		if len(args) != 2 {
			return fmt.Errorf("%w: execute <orderID> < plan.json", ErrUsage)
		}
		orderID, err := parseID(args[1])
		if err != nil {
			return err
		}
		var plan core.OrchestrationPlan
		if err := json.NewDecoder(stdin).Decode(&plan); err != nil {
			return fmt.Errorf("invalid plan JSON: %w", err)
		}
		result, err := svc.ExecutePlan(ctx, app.ExecutePlanRequest{CompanyCode: companyCode, OrderID: orderID, Plan: &plan})
		if err != nil {
			return fmt.Errorf("execute failed: %w", err)
		}
		return enc.Encode(result.Result)

	case "plans":
		if len(args) < 2 {
			return fmt.Errorf("%w: plans <orderID>...", ErrUsage)
		}
		ids := make([]int, 0, len(args)-1)
		for _, a := range args[1:] {
			id, err := parseID(a)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		result, err := svc.GeneratePlans(ctx, app.BatchPlanRequest{CompanyCode: companyCode, OrderIDs: ids})
		if err != nil {
			return fmt.Errorf("batch planning failed: %w", err)
		}
		return enc.Encode(result)

	case "stock", "s":
		if len(args) < 3 || len(args)%2 == 0 {
			return fmt.Errorf("%w: stock <productID> <warehouse> [<productID> <warehouse>...]", ErrUsage)
		}
		var keys []core.StockKey
		for i := 1; i < len(args); i += 2 {
			id, err := parseID(args[i])
			if err != nil {
				return err
			}
			keys = append(keys, core.StockKey{ProductID: id, WarehouseCode: strings.ToUpper(args[i+1])})
		}
		result, err := svc.GetStockAvailability(ctx, app.StockQuery{CompanyCode: companyCode, Keys: keys})
		if err != nil {
			return fmt.Errorf("stock lookup failed: %w", err)
		}
		printStock(stdout, result)
		return nil

	case "advance":
		if len(args) != 4 {
			return fmt.Errorf("%w: advance <kind> <docID> <status>", ErrUsage)
		}
		id, err := parseID(args[2])
		if err != nil {
			return err
		}
		result, err := svc.AdvanceDocument(ctx, app.AdvanceDocumentRequest{
			CompanyCode: companyCode, Kind: args[1], DocumentID: id, Status: strings.ToUpper(args[3]),
		})
		if err != nil {
			return fmt.Errorf("advance failed: %w", err)
		}
		fmt.Fprintf(stdout, "%s is now %s\n", result.Document.Number, result.Document.Status)
		return nil

	case "schema":
		return enc.Encode(svc.PlanSchema())

	default:
		return fmt.Errorf("%w: unknown command %q\n%s", ErrUsage, args[0], usage)
	}
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q is not a valid ID", ErrUsage, s)
	}
	return id, nil
}

func printStock(w io.Writer, result *app.StockAvailabilityResult) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("=", 78))
	fmt.Fprintf(w, "  STOCK AVAILABILITY  (company %s)\n", result.CompanyCode)
	fmt.Fprintln(w, strings.Repeat("=", 78))
	fmt.Fprintf(w, "  %-8s %-6s %10s %10s %10s %10s  %-10s\n", "PRODUCT", "WH", "ON HAND", "RESERVED", "AVAILABLE", "ON ORDER", "STATUS")
	fmt.Fprintln(w, "  "+strings.Repeat("-", 74))
	for _, s := range result.Stock {
		fmt.Fprintf(w, "  %-8d %-6s %10s %10s %10s %10s  %-10s\n",
			s.Key.ProductID, s.Key.WarehouseCode,
			s.OnHand.String(), s.SoftReserved.Add(s.HardReserved).String(),
			s.Available.String(), s.OnOrder.String(), s.Status)
	}
	fmt.Fprintln(w, strings.Repeat("=", 78))
}
