package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/concierge/pkg/requests"
	"github.com/go-go-golems/concierge/pkg/usage"
)

// base carries what every handler needs: the guest context, the catalog and the
// estimator used to charge catalog lookups against the shared ledger.
type base struct {
	guest     Guest
	catalog   *Catalog
	estimator usage.Estimator
}

// lookup charges one backend call for query and runs fn. The result text is settled
// as completion tokens.
func (b base) lookup(ctx context.Context, ledger *usage.Ledger, tool, query string, fn func() (string, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prompt := b.estimator.Count(query)
	res, err := ledger.Reserve(prompt)
	if err != nil {
		return errors.Wrap(err, tool)
	}
	out, err := fn()
	if err != nil {
		return err
	}
	if err := ledger.Settle(res, usage.Tokens{Prompt: prompt, Completion: b.estimator.Count(out)}); err != nil {
		return errors.Wrap(err, tool)
	}
	log.Debug().Str("component", "handlers").Str("tool", tool).Str("query", query).Msg("lookup")
	return nil
}

// RoomService takes food and beverage orders from the menu.
type RoomService struct{ base }

func (h *RoomService) Invoke(ctx context.Context, description string, ledger *usage.Ledger) (any, error) {
	var items []MenuItem
	err := h.lookup(ctx, ledger, "search_menu", description, func() (string, error) {
		items = h.catalog.SearchMenu(description)
		return menuText(items), nil
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return requests.Reply{Reason: fmt.Sprintf("I couldn't find %q on our menu", strings.TrimSpace(description))}, nil
	}

	var (
		ordered     []string
		unavailable []string
		total       float64
		eta         string
	)
	for _, it := range items {
		if !it.Available {
			unavailable = append(unavailable, it.Name)
			continue
		}
		ordered = append(ordered, it.Name)
		total += it.Price
		if eta == "" {
			eta = it.PreparationTime
		} else {
			eta = requests.LaterETA(eta, it.PreparationTime)
		}
	}
	if len(ordered) == 0 {
		return requests.Reply{Reason: fmt.Sprintf("%s is not available right now", strings.Join(unavailable, ", "))}, nil
	}
	msg := fmt.Sprintf("Your order of %s (€%.2f) will be delivered to %s.", strings.Join(ordered, ", "), total, h.guest.room())
	if len(unavailable) > 0 {
		msg += fmt.Sprintf(" Unfortunately %s is not available right now.", strings.Join(unavailable, ", "))
	}
	return requests.Reply{Status: string(requests.StatusCompleted), Message: msg, ETA: eta}, nil
}

// Maintenance handles supplies, housekeeping and repairs.
type Maintenance struct{ base }

func (h *Maintenance) Invoke(ctx context.Context, description string, ledger *usage.Ledger) (any, error) {
	var (
		svc   Service
		found bool
	)
	err := h.lookup(ctx, ledger, "check_service", description, func() (string, error) {
		svc, found = h.catalog.CheckService(description)
		return svc.Service + " " + svc.AdditionalInfo, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return map[string]any{"reason": fmt.Sprintf("no maintenance service matches %q", strings.TrimSpace(description))}, nil
	}
	status := requests.StatusCompleted
	if svc.Priority == "high" {
		status = requests.StatusPending
	}
	return map[string]any{
		"status":  string(status),
		"message": fmt.Sprintf("%s request for %s has been scheduled. %s.", svc.Service, h.guest.room(), svc.AdditionalInfo),
		"eta":     svc.ResponseTime,
	}, nil
}

// Concierge answers local information requests from the venue list.
type Concierge struct{ base }

func (h *Concierge) Invoke(ctx context.Context, description string, ledger *usage.Ledger) (any, error) {
	var venues []Venue
	err := h.lookup(ctx, ledger, "web_search", description, func() (string, error) {
		venues = h.catalog.SearchVenues(description)
		return venueText(venues), nil
	})
	if err != nil {
		return nil, err
	}
	if len(venues) == 0 {
		return requests.Reply{Reason: fmt.Sprintf("I couldn't find local information about %q near %s", strings.TrimSpace(description), h.guest.Hotel.Name)}, nil
	}

	lines := make([]string, 0, len(venues))
	reserve := wantsReservation(description)
	canReserve := false
	for _, v := range venues {
		lines = append(lines, fmt.Sprintf("%s (%s, %s): %s", v.Name, v.Address, v.Distance, v.Details))
		canReserve = canReserve || v.Reservable
	}
	msg := "Near " + h.guest.Hotel.Name + ": " + strings.Join(lines, " ")
	if reserve && canReserve {
		msg += " I'll arrange the booking and confirm shortly."
		return requests.Reply{Status: string(requests.StatusPending), Message: msg, ETA: "15-30 minutes"}, nil
	}
	return requests.Reply{Status: string(requests.StatusCompleted), Message: msg, ETA: "immediate"}, nil
}

func wantsReservation(description string) bool {
	d := strings.ToLower(description)
	for _, w := range []string{"book", "reserv", "arrange", "order a taxi", "call a taxi"} {
		if strings.Contains(d, w) {
			return true
		}
	}
	return false
}

func menuText(items []MenuItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s %s %.2f %s", it.Name, it.Description, it.Price, it.PreparationTime))
	}
	return strings.Join(parts, "\n")
}

func venueText(vs []Venue) string {
	parts := make([]string, 0, len(vs))
	for _, v := range vs {
		parts = append(parts, v.Name+" "+v.Details)
	}
	return strings.Join(parts, "\n")
}

type Option func(*base)

func WithEstimator(e usage.Estimator) Option {
	return func(b *base) { b.estimator = e }
}

func WithCatalog(c *Catalog) Option {
	return func(b *base) { b.catalog = c }
}

// DispatcherOptions builds the three handlers and registers them for their
// capabilities.
func DispatcherOptions(guest Guest, opts ...Option) []requests.DispatcherOption {
	b := base{guest: guest, estimator: usage.NewTiktokenEstimator()}
	for _, o := range opts {
		o(&b)
	}
	if b.catalog == nil {
		b.catalog = DefaultCatalog()
	}
	// every handler makes one catalog lookup
	return []requests.DispatcherOption{
		requests.WithHandlerCalls(1),
		requests.WithHandler(requests.RoomService, &RoomService{b}),
		requests.WithHandler(requests.Concierge, &Concierge{b}),
		requests.WithHandler(requests.Maintenance, &Maintenance{b}),
	}
}
