package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mzahrani/backend-voucherhub/internal/obs"
)

// Event is a tagged edit dispatched to a Session. Exactly one of the custom
// price or the markup drives a given recompute; the other is derived.
type Event interface{ pricingEvent() }

// CustomPriceEdited carries a raw custom-price edit for one option.
type CustomPriceEdited struct {
	Option string
	Raw    string
}

// MarkupEdited carries a raw markup-percentage edit for one option.
type MarkupEdited struct {
	Option string
	Raw    string
}

// RateChanged announces a new conversion context for every option.
type RateChanged struct {
	Next Conversion
}

func (CustomPriceEdited) pricingEvent() {}
func (MarkupEdited) pricingEvent()      {}
func (RateChanged) pricingEvent()       {}

// Result is the derived pair handed to presentation after a recompute.
type Result struct {
	Option        string
	CustomPrice   decimal.Decimal
	MarkupPercent decimal.Decimal
	Wholesale     decimal.Decimal
	Class         Class
	Warning       Warning
}

// CommitSink persists one changed field per call. Persistence lags the
// synchronous recompute; the in-memory derived pair is authoritative.
type CommitSink interface {
	SaveCustomPrice(ctx context.Context, option string, price decimal.Decimal) error
	SaveMarkup(ctx context.Context, option string, percent decimal.Decimal) error
}

// FactSource resolves the pricing fact for an option code from the current
// catalog snapshot.
type FactSource interface {
	Fact(option string) (Fact, bool)
}

// PersistedOption is a previously committed price state loaded from storage.
type PersistedOption struct {
	ID            string
	CustomPrice   *decimal.Decimal
	MarkupPercent *decimal.Decimal
}

// ErrUnknownOption is returned when an edit targets an option absent from the
// catalog snapshot.
var ErrUnknownOption = errors.New("pricing: unknown option")

type commitField int

const (
	commitCustomPrice commitField = iota
	commitMarkup
)

func (f commitField) String() string {
	if f == commitMarkup {
		return "markup"
	}
	return "custom_price"
}

type pendingCommit struct {
	timer *time.Timer
	gen   uint64
	field commitField
}

// Session owns the price state for every option of one store. States are
// mutated exclusively through Apply; there is no ambient lookup. Edits are
// debounced into a single persisted commit per option after a quiescence
// interval, and a newer edit cancels a still-pending older commit.
type Session struct {
	mu       sync.Mutex
	facts    FactSource
	sink     CommitSink
	conv     Conversion
	debounce time.Duration
	logger   zerolog.Logger

	states  map[string]*State
	pending map[string]*pendingCommit
	gen     uint64
}

// SessionConfig groups Session dependencies.
type SessionConfig struct {
	Facts      FactSource
	Sink       CommitSink
	Conversion Conversion
	Debounce   time.Duration
	Logger     zerolog.Logger
}

// NewSession constructs a Session.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Facts == nil {
		return nil, errors.New("pricing: fact source is required")
	}
	if cfg.Conversion.Rate.Sign() <= 0 {
		return nil, errors.New("pricing: conversion rate must be positive")
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 600 * time.Millisecond
	}
	return &Session{
		facts:    cfg.Facts,
		sink:     cfg.Sink,
		conv:     cfg.Conversion,
		debounce: debounce,
		logger:   cfg.Logger,
		states:   make(map[string]*State),
		pending:  make(map[string]*pendingCommit),
	}, nil
}

// Load seeds states from persisted options. A committed custom price always
// wins over a stored markup; an option with neither starts at the wholesale
// price with zero markup. A wholesale override discovered later never resets
// a committed custom price, only the derivation changes. It returns the
// number of options seeded.
func (s *Session) Load(persisted map[string]PersistedOption) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	seeded := 0
	for option, p := range persisted {
		fact, ok := s.facts.Fact(option)
		if !ok {
			continue
		}
		st := &State{}
		switch {
		case p.CustomPrice != nil:
			st.CustomPrice = *p.CustomPrice
			st.MarkupPercent, _ = FromCustomPrice(fact, s.conv, *p.CustomPrice)
		case p.MarkupPercent != nil:
			st.MarkupPercent = *p.MarkupPercent
			st.CustomPrice = FromMarkup(fact, s.conv, *p.MarkupPercent)
		default:
			st.CustomPrice = WholesalePrice(fact, s.conv)
		}
		s.states[option] = st
		seeded++
	}
	return seeded
}

// Apply dispatches one edit event and returns the recomputed results. Rate
// changes touch every known option; the two edit events touch exactly one.
func (s *Session) Apply(ctx context.Context, ev Event) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case CustomPriceEdited:
		res, err := s.applyCustomPriceLocked(e.Option, e.Raw)
		if err != nil {
			return nil, err
		}
		return []Result{res}, nil
	case MarkupEdited:
		res, err := s.applyMarkupLocked(e.Option, e.Raw)
		if err != nil {
			return nil, err
		}
		return []Result{res}, nil
	case RateChanged:
		return s.applyRateLocked(e.Next)
	default:
		return nil, fmt.Errorf("pricing: unsupported event %T", ev)
	}
}

func (s *Session) applyCustomPriceLocked(option, raw string) (Result, error) {
	fact, ok := s.facts.Fact(option)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOption, option)
	}
	value, warn := ParseAmount(raw)
	markup, computeWarn := FromCustomPrice(fact, s.conv, value)
	if warn == WarnNone {
		warn = computeWarn
	}
	st := s.stateLocked(option)
	st.CustomPrice = value
	st.MarkupPercent = markup
	s.scheduleCommitLocked(option, commitCustomPrice)
	recordRecompute("custom_price", warn)
	return s.resultLocked(option, fact, warn), nil
}

func (s *Session) applyMarkupLocked(option, raw string) (Result, error) {
	fact, ok := s.facts.Fact(option)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOption, option)
	}
	value, warn := ParseAmount(raw)
	st := s.stateLocked(option)
	st.MarkupPercent = value
	st.CustomPrice = FromMarkup(fact, s.conv, value)
	s.scheduleCommitLocked(option, commitMarkup)
	recordRecompute("markup", warn)
	return s.resultLocked(option, fact, warn), nil
}

func (s *Session) applyRateLocked(next Conversion) ([]Result, error) {
	if next.Rate.Sign() <= 0 {
		return nil, errors.New("pricing: conversion rate must be positive")
	}
	s.conv = next
	options := make([]string, 0, len(s.states))
	for option := range s.states {
		options = append(options, option)
	}
	sort.Strings(options)

	results := make([]Result, 0, len(options))
	for _, option := range options {
		fact, ok := s.facts.Fact(option)
		if !ok {
			continue
		}
		st := s.states[option]
		markup, warn := OnRateChange(fact, next, *st)
		st.MarkupPercent = markup
		s.scheduleCommitLocked(option, commitMarkup)
		recordRecompute("rate_change", warn)
		results = append(results, s.resultLocked(option, fact, warn))
	}
	return results, nil
}

// Snapshot returns the current derived pair for one option.
func (s *Session) Snapshot(option string) (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[option]; !ok {
		return Result{}, false
	}
	fact, ok := s.facts.Fact(option)
	if !ok {
		return Result{}, false
	}
	return s.resultLocked(option, fact, WarnNone), true
}

// SnapshotAll returns the current derived pair for every known option, in
// map order.
func (s *Session) SnapshotAll() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	results := make([]Result, 0, len(s.states))
	for option := range s.states {
		fact, ok := s.facts.Fact(option)
		if !ok {
			continue
		}
		results = append(results, s.resultLocked(option, fact, WarnNone))
	}
	return results
}

// Flush commits every pending change immediately. Used on shutdown so a
// debounce window never swallows the last edit.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	type flushItem struct {
		option string
		field  commitField
	}
	items := make([]flushItem, 0, len(s.pending))
	for option, p := range s.pending {
		p.timer.Stop()
		items = append(items, flushItem{option: option, field: p.field})
	}
	s.pending = make(map[string]*pendingCommit)
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].option < items[j].option })
	var joined error
	for _, item := range items {
		if err := s.commit(ctx, item.option, item.field); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

// Close cancels pending commits without running them.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pending {
		p.timer.Stop()
	}
	s.pending = make(map[string]*pendingCommit)
}

func (s *Session) stateLocked(option string) *State {
	st, ok := s.states[option]
	if !ok {
		st = &State{}
		s.states[option] = st
	}
	return st
}

func (s *Session) resultLocked(option string, fact Fact, warn Warning) Result {
	st := s.states[option]
	return Result{
		Option:        option,
		CustomPrice:   st.CustomPrice,
		MarkupPercent: st.MarkupPercent,
		Wholesale:     WholesalePrice(fact, s.conv),
		Class:         Classify(st.MarkupPercent),
		Warning:       warn,
	}
}

// scheduleCommitLocked arms (or re-arms) the single pending commit for the
// option. The previous pending commit is cancelled outright, never merged:
// last writer wins.
func (s *Session) scheduleCommitLocked(option string, field commitField) {
	if s.sink == nil {
		return
	}
	if p, ok := s.pending[option]; ok {
		p.timer.Stop()
		recordCommit(p.field.String(), "superseded")
	}
	s.gen++
	gen := s.gen
	p := &pendingCommit{gen: gen, field: field}
	p.timer = time.AfterFunc(s.debounce, func() {
		s.fireCommit(option, gen)
	})
	s.pending[option] = p
}

func (s *Session) fireCommit(option string, gen uint64) {
	s.mu.Lock()
	p, ok := s.pending[option]
	if !ok || p.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.pending, option)
	field := p.field
	s.mu.Unlock()

	if err := s.commit(context.Background(), option, field); err != nil {
		s.logger.Error().Err(err).Str("option", option).Str("field", field.String()).Msg("price_commit_failed")
	}
}

func (s *Session) commit(ctx context.Context, option string, field commitField) error {
	s.mu.Lock()
	st, ok := s.states[option]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	price := ToMoney(st.CustomPrice)
	percent := ToMoney(st.MarkupPercent)
	s.mu.Unlock()

	var err error
	switch field {
	case commitMarkup:
		err = s.sink.SaveMarkup(ctx, option, percent)
	default:
		err = s.sink.SaveCustomPrice(ctx, option, price)
	}
	if err != nil {
		recordCommit(field.String(), "error")
		return fmt.Errorf("pricing: commit %s for %s: %w", field, option, err)
	}
	recordCommit(field.String(), "committed")
	return nil
}

func recordRecompute(driver string, warn Warning) {
	if obs.PriceRecomputeTotal != nil {
		obs.PriceRecomputeTotal.WithLabelValues(driver, warn.String()).Inc()
	}
}

func recordCommit(field, result string) {
	if obs.PriceCommitTotal != nil {
		obs.PriceCommitTotal.WithLabelValues(field, result).Inc()
	}
}
