package signal

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoSignal means the text carries no recognizable trade signal.
var ErrNoSignal = errors.New("no trade signal found")

// ParseError names the required field that could not be found.
type ParseError struct {
	Field string
}

func (e *ParseError) Error() string {
	return "no trade signal found: missing " + e.Field
}

func (e *ParseError) Unwrap() error { return ErrNoSignal }

type extractor[T any] func(text string) (T, bool)

// firstMatch runs the chain in order and stops at the first hit.
func firstMatch[T any](text string, chain []extractor[T]) (T, bool) {
	for _, fn := range chain {
		if v, ok := fn(text); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

type symbolAction struct {
	symbol string
	action Action
}

var (
	reStrictSymbol = regexp.MustCompile(`(?i)#([A-Z]+(?:USD)?)\s*(?:\([^)]*\))?\s*(Buy|Sell)\s*Setup`)
	reLooseSymbol  = regexp.MustCompile(`(?i)([A-Z]+(?:USD)?)\s*(?:\([^)]*\))?\s*(Buy|Sell)`)

	reTradeZone = regexp.MustCompile(`(?i)(?:Selling|Buying)\s*Zone[:\s]*(\d+(?:\.\d+)?)\s*[-–—]\s*(\d+(?:\.\d+)?)`)
	reEntryZone = regexp.MustCompile(`(?i)(?:Entry|Zone)[:\s]*(\d+(?:\.\d+)?)\s*[-–—]\s*(\d+(?:\.\d+)?)`)

	reStopLoss = regexp.MustCompile(`(?i)Stop\s*Loss[:\s]*(\d+(?:\.\d+)?)`)
	reSL       = regexp.MustCompile(`(?i)SL[:\s]*(\d+(?:\.\d+)?)`)

	reTarget1      = regexp.MustCompile(`(?i)Target\s*1[:\s]*(\d+(?:\.\d+)?)`)
	reTarget2      = regexp.MustCompile(`(?i)Target\s*2[:\s]*(\d+(?:\.\d+)?)`)
	reFinalTarget  = regexp.MustCompile(`(?i)Final\s*Target[:\s]*(\d+(?:\.\d+)?)`)
	reAnyTarget    = regexp.MustCompile(`(?i)(?:TP|Target)[:\s]*(\d{4}(?:\.\d+)?)`)
	reReason       = regexp.MustCompile(`(?i)Reason[:\s]*(.+?)(?:Plan|$)`)
	rePlan         = regexp.MustCompile(`(?i)Plan[:\s]*(.+)`)
	reWhitespace   = regexp.MustCompile(`\s+`)
	namedTargetsRe = []*regexp.Regexp{reTarget1, reTarget2, reFinalTarget}
)

var symbolChain = []extractor[symbolAction]{
	symbolFrom(reStrictSymbol),
	symbolFrom(reLooseSymbol),
}

var zoneChain = []extractor[EntryZone]{
	zoneFrom(reTradeZone),
	zoneFrom(reEntryZone),
}

var stopChain = []extractor[float64]{
	priceFrom(reStopLoss),
	priceFrom(reSL),
}

var targetChain = []extractor[[]float64]{
	namedTargets,
	scannedTargets,
}

func symbolFrom(re *regexp.Regexp) extractor[symbolAction] {
	return func(text string) (symbolAction, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return symbolAction{}, false
		}
		return symbolAction{
			symbol: strings.ToUpper(m[1]),
			action: Action(strings.ToUpper(m[2])),
		}, true
	}
}

func zoneFrom(re *regexp.Regexp) extractor[EntryZone] {
	return func(text string) (EntryZone, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return EntryZone{}, false
		}
		lo, err1 := strconv.ParseFloat(m[1], 64)
		hi, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			return EntryZone{}, false
		}
		return EntryZone{Min: lo, Max: hi}, true
	}
}

func priceFrom(re *regexp.Regexp) extractor[float64] {
	return func(text string) (float64, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return 0, false
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
}

// namedTargets collects Target 1, Target 2 and Final Target in that fixed order.
func namedTargets(text string) ([]float64, bool) {
	var out []float64
	for _, re := range namedTargetsRe {
		if v, ok := priceFrom(re)(text); ok {
			out = append(out, v)
		}
	}
	return out, len(out) > 0
}

// scannedTargets picks up every TP/Target with a four digit price, in text order.
func scannedTargets(text string) ([]float64, bool) {
	var out []float64
	for _, m := range reAnyTarget.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			out = append(out, v)
		}
	}
	return out, len(out) > 0
}

// Normalize collapses newlines and runs of whitespace into single spaces.
func Normalize(text string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(text, " "))
}

// Parse extracts a trade signal from OCR text. It returns a *ParseError
// (matching ErrNoSignal) when a required field is missing. Reason and Plan
// are best effort and never fail the parse.
func Parse(text string) (*TradeSignal, error) {
	clean := Normalize(text)

	sa, ok := firstMatch(clean, symbolChain)
	if !ok {
		return nil, &ParseError{Field: "symbol"}
	}
	zone, ok := firstMatch(clean, zoneChain)
	if !ok {
		return nil, &ParseError{Field: "entry zone"}
	}
	stop, ok := firstMatch(clean, stopChain)
	if !ok {
		return nil, &ParseError{Field: "stop loss"}
	}
	targets, ok := firstMatch(clean, targetChain)
	if !ok {
		return nil, &ParseError{Field: "targets"}
	}

	sig := &TradeSignal{
		Symbol:    sa.symbol,
		Action:    sa.action,
		EntryZone: zone,
		StopLoss:  stop,
		Targets:   targets,
	}
	if m := reReason.FindStringSubmatch(clean); m != nil {
		sig.Reason = StripNoise(m[1])
	}
	if m := rePlan.FindStringSubmatch(clean); m != nil {
		sig.Plan = StripNoise(m[1])
	}
	return sig, nil
}
