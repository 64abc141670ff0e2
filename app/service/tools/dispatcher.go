package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"gastobot/app/config"
	"gastobot/app/service/pending"
	"gastobot/app/service/policy"
	"gastobot/app/store/budget"
	"gastobot/app/store/ledger"

	"github.com/elliotchance/pie/v2"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

const (
	ledgerTimeout = 10 * time.Second
	budgetTimeout = 5 * time.Second

	listPreviewSize = 5
)

type Dispatcher struct {
	ledger  ledger.Store
	budget  *budget.Service
	policy  *policy.Engine
	pending *pending.Service
}

func NewDispatcher(di *do.Injector) (*Dispatcher, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Dispatcher{
		ledger:  do.MustInvoke[ledger.Store](di),
		budget:  do.MustInvoke[*budget.Service](di),
		policy:  policy.NewEngine(cfg.Policy.HighExpenseThreshold),
		pending: do.MustInvoke[*pending.Service](di),
	}, nil
}

// NewDispatcherWith assembles a dispatcher from explicit collaborators.
func NewDispatcherWith(store ledger.Store, budgetSvc *budget.Service, engine *policy.Engine, pendingSvc *pending.Service) *Dispatcher {
	return &Dispatcher{
		ledger:  store,
		budget:  budgetSvc,
		policy:  engine,
		pending: pendingSvc,
	}
}

// Dispatch validates and executes one invocation. Order within a message
// is the caller's job; each call here is independent, and a failure never
// undoes invocations that already committed.
func (d *Dispatcher) Dispatch(ctx context.Context, dctx DispatchContext, inv Invocation) Outcome {
	switch inv.Name {
	case ToolRegisterExpense:
		return d.register(ctx, dctx, inv)
	case ToolEditExpense:
		return d.edit(ctx, dctx, inv)
	case ToolDeleteExpense:
		return d.delete(ctx, dctx, inv)
	case ToolListExpenses:
		return d.list(ctx, dctx, inv)
	case ToolVerifyBudget:
		return d.verifyBudget(ctx, dctx, inv)
	case ToolGenerateReport:
		return d.report(ctx, dctx, inv)
	default:
		return Outcome{
			Tool: inv.Name,
			Err:  fmt.Errorf("%w: herramienta desconocida %q", ErrValidation, inv.Name),
			Text: fmt.Sprintf("No reconozco la acción %q.", inv.Name),
		}
	}
}

const recentSearchLimit = 20

// resolveTarget picks the record an edit or deletion applies to: an
// explicit id wins, then a description matched against the user's recent
// expenses (newest first), then the last expense the user touched.
func (d *Dispatcher) resolveTarget(ctx context.Context, dctx DispatchContext, tool, recordID, description string) (string, *Outcome) {
	if recordID != "" {
		return recordID, nil
	}

	if description != "" {
		qctx, cancel := context.WithTimeout(ctx, ledgerTimeout)
		defer cancel()

		records, err := d.ledger.Find(qctx, ledger.Query{User: dctx.UserID, Limit: recentSearchLimit})
		if err != nil {
			return "", &Outcome{
				Tool: tool,
				Err:  fmt.Errorf("%w: %s", ErrUnavailable, err),
				Text: "No pude buscar el gasto ahora mismo, inténtalo de nuevo.",
			}
		}

		needle := strings.ToLower(strings.TrimSpace(description))
		for _, rec := range records {
			if strings.Contains(strings.ToLower(rec.Item), needle) {
				return rec.ID, nil
			}
		}

		return "", &Outcome{
			Tool: tool,
			Err:  fmt.Errorf("%w: no expense matching %q", ErrValidation, description),
			Text: fmt.Sprintf("No encontré un gasto reciente que se parezca a %q.", description),
		}
	}

	if recent, ok := d.pending.GetRecent(dctx.UserID); ok {
		return recent, nil
	}

	return "", &Outcome{
		Tool: tool,
		Err:  fmt.Errorf("%w: no record to target", ErrValidation),
		Text: "No encontré un gasto reciente. Dime cuál era o dame el ID.",
	}
}

// mutationContext detaches a ledger mutation from transport cancellation:
// a dispatched financial write must run to completion and be recorded even
// if the client disconnects mid-request.
func mutationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
}

func (d *Dispatcher) register(ctx context.Context, dctx DispatchContext, inv Invocation) Outcome {
	var args RegisterArgs
	if err := decodeArgs(inv.Arguments, &args); err != nil {
		return Outcome{
			Tool: inv.Name,
			Err:  err,
			Text: "Para registrar el gasto necesito al menos el monto (mayor a 0) y qué compraste.",
		}
	}

	decision := d.policy.ForRegistration(args.Amount, args.Method, firstNonEmpty(args.Date, dctx.Utterance), dctx.Now)

	rec := &ledger.Record{
		User:     dctx.UserID,
		Amount:   args.Amount,
		Item:     args.Item,
		Category: args.Category,
		Method:   args.Method,
		Notes:    args.Notes,
		RawInput: dctx.Utterance,
		SpentOn:  decision.ResolvedDate,
	}

	mctx, cancel := mutationContext(ctx)
	defer cancel()

	if err := d.ledger.Create(mctx, rec); err != nil {
		return Outcome{
			Tool: inv.Name,
			Err:  fmt.Errorf("%w: %s", ErrUnavailable, err),
			Text: "No pude registrar el gasto ahora mismo, inténtalo de nuevo en un momento.",
		}
	}

	d.pending.SetRecent(dctx.UserID, rec.ID)

	out := Outcome{
		Tool:                 inv.Name,
		RecordID:             rec.ID,
		RequiresConfirmation: decision.RequiresConfirmation,
		FollowUp:             decision.FollowUpNeeded,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Gasto registrado: %s en %s", money(args.Amount), args.Item)
	if args.Category != "" {
		fmt.Fprintf(&b, " (%s)", args.Category)
	}
	if !sameDay(decision.ResolvedDate, dctx.Now) {
		fmt.Fprintf(&b, " con fecha %s", decision.ResolvedDate.Format("02/01"))
	}
	b.WriteString(".")

	// Budget note is best effort: a budget outage never fails a
	// registration that already committed.
	if args.Category != "" {
		bctx, bcancel := context.WithTimeout(ctx, budgetTimeout)
		status, ok, err := d.budget.Check(bctx, dctx.UserID, args.Category, dctx.Now)
		bcancel()

		switch {
		case err != nil:
			slog.Warn("Budget check failed after registration", "category", args.Category, "error", err)
		case ok:
			fmt.Fprintf(&b, " Presupuesto restante en %s: %s (%.1f%% usado).",
				args.Category, money(status.Remaining), status.UsedPct)
		}
	}

	if decision.RequiresConfirmation {
		// Act-first: the expense is already committed, so this is a
		// notice, never a permission request.
		fmt.Fprintf(&b, " Es un monto alto (%s): si fue un error dime \"elimínalo\" y lo borro.", money(args.Amount))
	}

	if decision.FollowUpNeeded == "method" {
		d.pending.Set(dctx.UserID, pending.Item{
			RecordID:     rec.ID,
			MissingField: "method",
			CreatedAt:    dctx.Now,
		})
		b.WriteString(" ¿Con qué pagaste? (efectivo, tarjeta, transferencia, Nequi, Daviplata)")
	} else {
		// The newest registration is the only one eligible for a
		// deferred answer; a method-complete one leaves none eligible.
		d.pending.Clear(dctx.UserID)
	}

	out.Text = b.String()

	return out
}

func (d *Dispatcher) edit(ctx context.Context, dctx DispatchContext, inv Invocation) Outcome {
	var args EditArgs
	if err := decodeArgs(inv.Arguments, &args); err != nil {
		return Outcome{
			Tool: inv.Name,
			Err:  err,
			Text: "Para editar necesito saber qué campo cambiar y el nuevo valor.",
		}
	}

	recordID, failure := d.resolveTarget(ctx, dctx, inv.Name, args.RecordID, args.Description)
	if failure != nil {
		return *failure
	}
	args.RecordID = recordID

	value, err := editValue(args.Field, args.NewValue, dctx.Now)
	if err != nil {
		return Outcome{
			Tool: inv.Name,
			Err:  fmt.Errorf("%w: %s", ErrValidation, err),
			Text: fmt.Sprintf("El valor %q no sirve para el campo %s.", args.NewValue, args.Field),
		}
	}

	mctx, cancel := mutationContext(ctx)
	defer cancel()

	rec, err := d.ledger.Update(mctx, args.RecordID, args.Field, value)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return Outcome{
				Tool: inv.Name,
				Err:  fmt.Errorf("%w: %s", ErrValidation, err),
				Text: "No encontré ese gasto, revisa el ID.",
			}
		}
		return Outcome{
			Tool: inv.Name,
			Err:  fmt.Errorf("%w: %s", ErrUnavailable, err),
			Text: "No pude actualizar el gasto ahora mismo, inténtalo de nuevo.",
		}
	}

	if args.Field == "method" {
		d.pending.Resolve(dctx.UserID, rec.ID)
	}
	d.pending.SetRecent(dctx.UserID, rec.ID)

	return Outcome{
		Tool:     inv.Name,
		RecordID: rec.ID,
		Text: fmt.Sprintf("Listo, actualicé %s (%s): %s ahora es %v.",
			rec.Item, money(rec.Amount), args.Field, displayValue(args.Field, value)),
	}
}

func (d *Dispatcher) delete(ctx context.Context, dctx DispatchContext, inv Invocation) Outcome {
	var args DeleteArgs
	if err := decodeArgs(inv.Arguments, &args); err != nil {
		return Outcome{Tool: inv.Name, Err: err, Text: "No entendí qué gasto eliminar."}
	}

	recordID, failure := d.resolveTarget(ctx, dctx, inv.Name, args.RecordID, args.Description)
	if failure != nil {
		return *failure
	}
	args.RecordID = recordID

	if !policy.DeleteConfirmed(dctx.History, dctx.Utterance, args.RecordID) {
		// No mutation happened, so asking is still allowed here. The tag
		// lets the next message prove the confirmation.
		return Outcome{
			Tool: inv.Name,
			Err:  fmt.Errorf("%w: delete not confirmed", ErrPolicy),
			Tag:  policy.DeleteTag(args.RecordID),
			Text: "¿Seguro que quieres eliminar ese gasto? Responde \"sí\" para confirmarlo.",
		}
	}

	mctx, cancel := mutationContext(ctx)
	defer cancel()

	if err := d.ledger.Delete(mctx, args.RecordID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return Outcome{
				Tool: inv.Name,
				Err:  fmt.Errorf("%w: %s", ErrValidation, err),
				Text: "Ese gasto ya no existe.",
			}
		}
		return Outcome{
			Tool: inv.Name,
			Err:  fmt.Errorf("%w: %s", ErrUnavailable, err),
			Text: "No pude eliminar el gasto ahora mismo, inténtalo de nuevo.",
		}
	}

	d.pending.Clear(dctx.UserID)

	return Outcome{
		Tool:     inv.Name,
		RecordID: args.RecordID,
		Text:     "Gasto eliminado.",
	}
}

func (d *Dispatcher) list(ctx context.Context, dctx DispatchContext, inv Invocation) Outcome {
	var args ListArgs
	if err := decodeArgs(inv.Arguments, &args); err != nil {
		return Outcome{
			Tool: inv.Name,
			Err:  err,
			Text: "¿De qué período quieres ver los gastos? (hoy, semana, mes, año)",
		}
	}

	from, to := policy.PeriodRange(args.Period, dctx.Now)

	qctx, cancel := context.WithTimeout(ctx, ledgerTimeout)
	defer cancel()

	records, err := d.ledger.Find(qctx, ledger.Query{
		User:     dctx.UserID,
		From:     from,
		To:       to,
		Category: args.Category,
		Limit:    100,
	})
	if err != nil {
		return Outcome{
			Tool: inv.Name,
			Err:  fmt.Errorf("%w: %s", ErrUnavailable, err),
			Text: "No pude consultar los gastos ahora mismo.",
		}
	}

	if len(records) == 0 {
		text := fmt.Sprintf("No encontré gastos para %s", args.Period)
		if args.Category != "" {
			text += " en " + args.Category
		}
		return Outcome{Tool: inv.Name, Text: text + "."}
	}

	total, byCategory := aggregate(records)

	var b strings.Builder
	fmt.Fprintf(&b, "Encontré %d gasto(s). Total: %s.\n\nPor categoría:\n", len(records), money(total))
	for _, category := range sortedByTotal(byCategory) {
		fmt.Fprintf(&b, "- %s: %s (%.1f%%)\n", category, money(byCategory[category]), byCategory[category]/total*100)
	}

	b.WriteString("\nÚltimos gastos:\n")
	for _, rec := range records[:min(listPreviewSize, len(records))] {
		fmt.Fprintf(&b, "- %s: %s en %s (%s)\n",
			rec.SpentOn.Format("2006-01-02"), money(rec.Amount), rec.Item, rec.Category)
	}

	return Outcome{Tool: inv.Name, Text: strings.TrimRight(b.String(), "\n")}
}

func (d *Dispatcher) verifyBudget(ctx context.Context, dctx DispatchContext, inv Invocation) Outcome {
	var args VerifyArgs
	if err := decodeArgs(inv.Arguments, &args); err != nil {
		return Outcome{Tool: inv.Name, Err: err, Text: "¿De qué categoría quieres verificar el presupuesto?"}
	}

	bctx, cancel := context.WithTimeout(ctx, budgetTimeout)
	defer cancel()

	status, ok, err := d.budget.Check(bctx, dctx.UserID, args.Category, dctx.Now)
	if err != nil {
		return Outcome{
			Tool: inv.Name,
			Err:  fmt.Errorf("%w: %s", ErrUnavailable, err),
			Text: fmt.Sprintf("No pude consultar el presupuesto de %s ahora mismo.", args.Category),
		}
	}
	if !ok {
		return Outcome{
			Tool: inv.Name,
			Text: fmt.Sprintf("No hay un presupuesto definido para %s.", args.Category),
		}
	}

	return Outcome{
		Tool: inv.Name,
		Text: fmt.Sprintf("Presupuesto de %s: límite %s, gastado %s (%.1f%%), restante %s.",
			status.Category, money(status.Limit), money(status.Spent), status.UsedPct, money(status.Remaining)),
	}
}

func (d *Dispatcher) report(ctx context.Context, dctx DispatchContext, inv Invocation) Outcome {
	var args ReportArgs
	if err := decodeArgs(inv.Arguments, &args); err != nil {
		return Outcome{Tool: inv.Name, Err: err, Text: "¿De qué período quieres el reporte? (hoy, semana, mes, año)"}
	}

	from, to := policy.PeriodRange(args.Period, dctx.Now)

	qctx, cancel := context.WithTimeout(ctx, ledgerTimeout)
	defer cancel()

	records, err := d.ledger.Find(qctx, ledger.Query{User: dctx.UserID, From: from, To: to})
	if err != nil {
		return Outcome{
			Tool: inv.Name,
			Err:  fmt.Errorf("%w: %s", ErrUnavailable, err),
			Text: "No pude consultar los gastos para el reporte.",
		}
	}

	if len(records) == 0 {
		return Outcome{Tool: inv.Name, Text: fmt.Sprintf("No hay gastos en el período %q.", args.Period)}
	}

	total, byCategory := aggregate(records)
	limits := d.fetchLimits(ctx, pie.Keys(byCategory))

	var b strings.Builder
	fmt.Fprintf(&b, "Reporte de gastos (%s)\nTotal: %s en %d transacciones.\n\nPor categoría:\n",
		args.Period, money(total), len(records))

	for _, category := range sortedByTotal(byCategory) {
		spent := byCategory[category]
		fmt.Fprintf(&b, "- %s: %s (%.1f%% del total", category, money(spent), spent/total*100)
		if limit, ok := limits[category]; ok && limit > 0 {
			fmt.Fprintf(&b, ", %.1f%% del presupuesto", spent/limit*100)
		}
		b.WriteString(")\n")
	}

	return Outcome{Tool: inv.Name, Text: strings.TrimRight(b.String(), "\n")}
}

// fetchLimits collects budget limits for the report concurrently. Best
// effort: a failed or missing limit just drops the budget column for
// that category.
func (d *Dispatcher) fetchLimits(ctx context.Context, categories []string) map[string]float64 {
	var mu sync.Mutex
	limits := make(map[string]float64, len(categories))

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(4)

	for _, category := range categories {
		category := category
		eg.Go(func() error {
			bctx, cancel := context.WithTimeout(ectx, budgetTimeout)
			defer cancel()

			limit, ok, err := d.budget.LimitFor(bctx, category)
			if err != nil {
				slog.Warn("Budget limit lookup failed", "category", category, "error", err)
				return nil
			}
			if ok {
				mu.Lock()
				limits[category] = limit
				mu.Unlock()
			}

			return nil
		})
	}

	_ = eg.Wait()

	return limits
}

func aggregate(records []ledger.Record) (float64, map[string]float64) {
	var total float64
	byCategory := make(map[string]float64)

	for _, rec := range records {
		total += rec.Amount
		category := rec.Category
		if category == "" {
			category = "Sin categoría"
		}
		byCategory[category] += rec.Amount
	}

	return total, byCategory
}

func sortedByTotal(byCategory map[string]float64) []string {
	return pie.SortUsing(pie.Keys(byCategory), func(a, b string) bool {
		return byCategory[a] > byCategory[b]
	})
}

func editValue(field, raw string, now time.Time) (any, error) {
	switch field {
	case "amount":
		amount, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q", raw)
		}
		if amount <= 0 {
			return nil, fmt.Errorf("amount must be positive")
		}
		return amount, nil
	case "date":
		return policy.ResolveDate(raw, now), nil
	default:
		return raw, nil
	}
}

func displayValue(field string, value any) any {
	if field == "date" {
		if t, ok := value.(time.Time); ok {
			return t.Format("02/01/2006")
		}
	}

	return value
}

func money(amount float64) string {
	return fmt.Sprintf("$%.0f", amount)
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
