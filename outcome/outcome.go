// Package outcome defines the tagged-variant result of a scrape attempt.
// Outcomes cross every component boundary in the pipeline as values, never
// as ambient errors.
package outcome

import "pricewatch/models"

// Kind enumerates the ways a scrape attempt can end.
type Kind string

const (
	KindSuccess       Kind = "SUCCESS"
	KindTimeout       Kind = "TIMEOUT"
	KindHTTPStatus    Kind = "HTTP_STATUS"
	KindParseMiss     Kind = "PARSE_MISS"
	KindRobotsDeny    Kind = "ROBOTS_DENY"
	KindRateLimited   Kind = "RATE_LIMITED"
	KindBrowserError  Kind = "BROWSER_ERROR"
	KindDomainBlocked Kind = "DOMAIN_BLOCKED"
	KindInvalidURL    Kind = "INVALID_URL"
	KindNetworkError  Kind = "NETWORK_ERROR"
	KindBlocked       Kind = "BLOCKED"
	KindInternal      Kind = "INTERNAL"
)

// Severity classifies a failed outcome for the Job Queue's retry policy.
type Severity int

const (
	// SeveritySuccess marks a Success outcome; never sent to the queue.
	SeveritySuccess Severity = iota
	// SeveritySoft is always retryable up to max_attempts.
	SeveritySoft
	// SeverityHard is retryable only while attempts remain and the kind
	// itself is retryable (DOMAIN_BLOCKED / INVALID_URL never are).
	SeverityHard
)

// ScrapeOutcome is the tagged union Success(PriceSignal) | SoftFail | HardFail.
// Use the constructors below; the zero value is not meaningful.
type ScrapeOutcome struct {
	Kind     Kind
	Severity Severity
	Signal   models.PriceSignal
	Detail   string
}

// Success builds a Success outcome carrying the extracted signal.
func Success(signal models.PriceSignal) ScrapeOutcome {
	return ScrapeOutcome{Kind: KindSuccess, Severity: SeveritySuccess, Signal: signal}
}

// SoftFail builds a transient, always-retryable failure.
func SoftFail(kind Kind, detail string) ScrapeOutcome {
	return ScrapeOutcome{Kind: kind, Severity: SeveritySoft, Detail: detail}
}

// HardFail builds a failure retried only if attempts remain and the kind
// permits it (see Retryable).
func HardFail(kind Kind, detail string) ScrapeOutcome {
	return ScrapeOutcome{Kind: kind, Severity: SeverityHard, Detail: detail}
}

// IsSuccess reports whether the outcome is a Success.
func (o ScrapeOutcome) IsSuccess() bool { return o.Severity == SeveritySuccess }

// Retryable reports whether this specific outcome may be retried at all,
// independent of remaining attempts. DOMAIN_BLOCKED and INVALID_URL are
// never retried.
func (o ScrapeOutcome) Retryable() bool {
	if o.IsSuccess() {
		return false
	}
	switch o.Kind {
	case KindDomainBlocked, KindInvalidURL:
		return false
	default:
		return true
	}
}

// RetryOnce reports whether this outcome's kind is retried at most once
// regardless of the job's configured max_attempts: HTTP_STATUS (non-429
// 4xx), PARSE_MISS, and BLOCKED are treated as likely-permanent, so a
// second failure of the same kind goes straight to the DLQ.
func (o ScrapeOutcome) RetryOnce() bool {
	switch o.Kind {
	case KindHTTPStatus, KindParseMiss, KindBlocked:
		return true
	default:
		return false
	}
}
