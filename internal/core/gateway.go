package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"fixit/internal/geo"
	"fixit/internal/llm"
	"fixit/internal/llm/tasks"
)

const instrumentationName = "fixit/internal/core"

// Failure reasons shown to the customer.
const (
	ReasonNotConfigured  = "AI suggestions are not configured"
	ReasonTimeout        = "The AI service took too long to respond"
	ReasonNetwork        = "Couldn't reach the AI service"
	ReasonUnavailable    = "The AI service is unavailable right now"
	ReasonNoAnswer       = "The AI service returned no usable answer"
	ReasonTooShort       = "Describe the problem in a bit more detail first"
	ReasonInternal       = "Something went wrong while contacting the AI service"
	ReasonAddressLookup  = "Couldn't look up a street address; using your coordinates instead"
	ReasonLocateDenied   = "Location permission denied. Please enter your address manually."
	ReasonLocateMissing  = "Your location is unavailable. Please enter your address manually."
	ReasonLocateTimedOut = "Finding your location took too long. Please enter your address manually."
)

// Outcome is the resolved state of one enrichment call.
type Outcome struct {
	Status    EnrichmentStatus
	Value     string
	SourceURI string
	Reason    string
}

// AddressOutcome adds the acquired position to an address resolution.
type AddressOutcome struct {
	Outcome
	// Coordinates is nil when geolocation failed.
	Coordinates *geo.Coordinates
	// LocateCode is set when geolocation failed.
	LocateCode geo.ErrorCode
}

// Gateway wraps the enrichment calls behind a contract that never fails outward:
// every error and panic becomes a failed Outcome with a human-readable reason.
type Gateway struct {
	enricher Enricher
	policy   Policy
	logger   Logger

	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

// NewGateway creates a gateway. A nil enricher disables AI calls.
func NewGateway(enricher Enricher, policy Policy, logger Logger) *Gateway {
	if logger == nil {
		logger = NopLogger()
	}
	g := &Gateway{
		enricher: enricher,
		policy:   policy,
		logger:   logger,
		tracer:   otel.Tracer(instrumentationName),
	}

	outcomes, err := otel.GetMeterProvider().Meter(instrumentationName).Int64Counter(
		"fixit.enrichment.outcomes",
		metric.WithDescription("Count of enrichment calls by operation and resolved status"),
	)
	if err != nil {
		logger.Warn("gateway: unable to register outcome metric", "error", err)
	}
	g.outcomes = outcomes
	return g
}

// Diagnose produces a diagnostic suggestion for the description. A failed
// outcome carries the policy's DiagnosisFallback as its value, if any.
func (g *Gateway) Diagnose(ctx context.Context, input tasks.DiagnosisInput) (out Outcome) {
	ctx, span := g.tracer.Start(ctx, "enrichment.diagnose")
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("diagnosis panicked", "panic", fmt.Sprint(r))
			out = Outcome{Status: EnrichmentFailed, Reason: ReasonInternal}
		}
		g.finish(ctx, span, "diagnosis", out)
	}()

	if g.enricher == nil {
		return Outcome{Status: EnrichmentFailed, Reason: ReasonNotConfigured}
	}

	ctx, cancel := context.WithTimeout(ctx, g.policy.DiagnosisTimeout)
	defer cancel()

	result, err := g.enricher.Diagnose(ctx, &input)
	if err != nil {
		reason := reasonFor(err)
		g.logger.Warn("diagnosis failed", "error", err.Error(), "reason", reason)
		return Outcome{Status: EnrichmentFailed, Value: g.policy.DiagnosisFallback, Reason: reason}
	}
	return Outcome{Status: EnrichmentSucceeded, Value: result.Suggestion}
}

// ResolveAddress acquires the device position and reverse-geocodes it.
// The whole operation is bounded by the policy's LocateTimeout.
func (g *Gateway) ResolveAddress(ctx context.Context, locator geo.Locator) (out AddressOutcome) {
	ctx, span := g.tracer.Start(ctx, "enrichment.resolve_address")
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("address resolution panicked", "panic", fmt.Sprint(r))
			if out.Coordinates != nil {
				out.Outcome = Outcome{Status: EnrichmentSucceeded, Value: out.Coordinates.String(), Reason: ReasonAddressLookup}
			} else {
				out = AddressOutcome{Outcome: Outcome{Status: EnrichmentFailed, Reason: ReasonLocateMissing}, LocateCode: geo.CodeUnavailable}
			}
		}
		g.finish(ctx, span, "address", out.Outcome)
	}()

	ctx, cancel := context.WithTimeout(ctx, g.policy.LocateTimeout)
	defer cancel()

	if locator == nil {
		locator = geo.Failed{Code: geo.CodeUnavailable}
	}
	coords, err := locator.Locate(ctx, geo.Request{
		HighAccuracy: g.policy.LocateHighAccuracy,
		Timeout:      g.policy.LocateTimeout,
	})
	if err != nil {
		code := geo.CodeOf(err)
		g.logger.Warn("geolocation failed", "code", string(code), "error", err.Error())
		return AddressOutcome{
			Outcome:    Outcome{Status: EnrichmentFailed, Reason: locateReason(code)},
			LocateCode: code,
		}
	}
	out.Coordinates = &coords
	span.SetAttributes(attribute.Bool("geo.acquired", true))

	if g.enricher == nil {
		out.Outcome = Outcome{Status: EnrichmentSucceeded, Value: coords.String()}
		return out
	}

	result, err := g.enricher.ReverseGeocode(ctx, &tasks.AddressInput{
		Latitude:  coords.Latitude,
		Longitude: coords.Longitude,
	})
	if err != nil {
		g.logger.Warn("reverse geocoding failed", "error", err.Error(), "coordinates", coords.String())
		out.Outcome = Outcome{Status: EnrichmentSucceeded, Value: coords.String(), Reason: ReasonAddressLookup}
		return out
	}

	out.Outcome = Outcome{Status: EnrichmentSucceeded, Value: result.Text, SourceURI: result.SourceURI}
	return out
}

func (g *Gateway) finish(ctx context.Context, span trace.Span, op string, out Outcome) {
	span.SetAttributes(
		attribute.String("enrichment.op", op),
		attribute.String("enrichment.status", string(out.Status)),
	)
	if out.Status == EnrichmentFailed {
		span.SetStatus(codes.Error, out.Reason)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	if g.outcomes != nil {
		g.outcomes.Add(ctx, 1, metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", string(out.Status)),
			attribute.Bool("degraded", out.Status == EnrichmentSucceeded && out.Reason != ""),
		))
	}
}

// reasonFor turns an enrichment error into a customer-facing sentence.
func reasonFor(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var llmErr *llm.LLMError
	if !errors.As(err, &llmErr) {
		return ReasonUnavailable
	}
	switch llmErr.Type {
	case llm.ErrorTypeTimeout:
		return ReasonTimeout
	case llm.ErrorTypeNetwork:
		return ReasonNetwork
	case llm.ErrorTypeValidation:
		if strings.Contains(llmErr.Message, "description") {
			return ReasonTooShort
		}
		return ReasonNoAnswer
	case llm.ErrorTypeParse, llm.ErrorTypeEmpty:
		return ReasonNoAnswer
	default:
		return ReasonUnavailable
	}
}

func locateReason(code geo.ErrorCode) string {
	switch code {
	case geo.CodePermissionDenied:
		return ReasonLocateDenied
	case geo.CodeTimeout:
		return ReasonLocateTimedOut
	default:
		return ReasonLocateMissing
	}
}
