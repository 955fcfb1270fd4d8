// Package admission implements the server-side gate for download requests.
//
// Each request runs the same ordered checks: required fields, source
// location, request signature (with a freshness bound), failure rate limit,
// then grant issuance. The ordering is deliberate: geo-blocked traffic never
// reaches the signature check, and failed signatures are recorded before the
// limiter is consulted so they count toward the failure budget.
package admission

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/seaward-systems/fleetgate/common/logging"
	"github.com/seaward-systems/fleetgate/common/signing"
	"github.com/seaward-systems/fleetgate/gate/internal/alerting"
	"github.com/seaward-systems/fleetgate/gate/internal/grant"
	"github.com/seaward-systems/fleetgate/gate/internal/metrics"
	"github.com/seaward-systems/fleetgate/gate/internal/models"
	"github.com/seaward-systems/fleetgate/gate/internal/ratelimit"
	"github.com/seaward-systems/fleetgate/gate/internal/repository"
)

// Reason identifies why a request was denied.
type Reason string

const (
	ReasonMissingParameters Reason = "missing_parameters"
	ReasonLocation          Reason = "location"
	ReasonBadSignature      Reason = "bad_signature"
	ReasonStaleTimestamp    Reason = "stale_timestamp"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonIssuerError       Reason = "issuer_error"
)

// Denial is the terminal DENIED state of the pipeline.
type Denial struct {
	Reason  Reason
	Message string
}

func (d *Denial) Error() string {
	return fmt.Sprintf("admission denied (%s): %s", d.Reason, d.Message)
}

func deny(reason Reason, message string) *Denial {
	return &Denial{Reason: reason, Message: message}
}

// Issuer is the downstream grant issuer consumed by the pipeline.
type Issuer interface {
	Issue(ctx context.Context, deviceID, fileKey string) (*grant.Grant, error)
}

// LocationFilter gates requests by source IP.
type LocationFilter interface {
	IsAllowed(ipAddress string) bool
}

// Pipeline orchestrates the admission checks for one gate instance.
type Pipeline struct {
	signer  *signing.Signer
	filter  LocationFilter
	tracker ratelimit.Tracker
	issuer  Issuer
	repo    repository.Repository
	alerts  alerting.Publisher

	// maxSignatureAge bounds how far a request timestamp may deviate from
	// server time. Zero disables the freshness check.
	maxSignatureAge time.Duration

	now func() time.Time
}

func NewPipeline(
	signer *signing.Signer,
	filter LocationFilter,
	tracker ratelimit.Tracker,
	issuer Issuer,
	repo repository.Repository,
	alerts alerting.Publisher,
	maxSignatureAge time.Duration,
) *Pipeline {
	return &Pipeline{
		signer:          signer,
		filter:          filter,
		tracker:         tracker,
		issuer:          issuer,
		repo:            repo,
		alerts:          alerts,
		maxSignatureAge: maxSignatureAge,
		now:             time.Now,
	}
}

// Admit runs the pipeline for one request. It returns either a grant or a
// denial, never both.
func (p *Pipeline) Admit(ctx context.Context, req *models.DownloadRequest, ipAddress, userAgent string) (*grant.Grant, *Denial) {
	if req.DeviceID == "" || req.Timestamp == "" || req.Signature == "" || req.FileKey == "" {
		// DeviceID may be empty here; the event still captures the source IP.
		p.recordEvent(ctx, models.EventMissingParams, req, ipAddress)
		metrics.AdmissionTotal.WithLabelValues(string(ReasonMissingParameters)).Inc()
		return nil, deny(ReasonMissingParameters, "Missing required parameters")
	}

	if !p.filter.IsAllowed(ipAddress) {
		p.recordEvent(ctx, models.EventLocationDenied, req, ipAddress)
		p.alert(ctx, models.EventLocationDenied, req.DeviceID, ipAddress,
			fmt.Sprintf("Suspicious access from %s for device %s", ipAddress, req.DeviceID))
		metrics.AdmissionTotal.WithLabelValues(string(ReasonLocation)).Inc()
		return nil, deny(ReasonLocation, "Access denied by location")
	}

	// Signature and freshness failures are recorded before the limiter is
	// consulted so they count toward the budget, and a device already over
	// the budget is answered with the rate-limit denial regardless of
	// whether this request's signature happens to verify.
	var sigDenial *Denial
	switch {
	case !p.signer.Verify(req.DeviceID, req.Timestamp, req.Signature):
		p.recordFailure(ctx, req.DeviceID)
		p.recordEvent(ctx, models.EventInvalidSignature, req, ipAddress)
		p.alert(ctx, models.EventInvalidSignature, req.DeviceID, ipAddress,
			fmt.Sprintf("Invalid signature from device %s at %s", req.DeviceID, ipAddress))
		sigDenial = deny(ReasonBadSignature, "Invalid signature")
	case !p.fresh(req.Timestamp):
		p.recordFailure(ctx, req.DeviceID)
		p.recordEvent(ctx, models.EventStaleTimestamp, req, ipAddress)
		p.alert(ctx, models.EventStaleTimestamp, req.DeviceID, ipAddress,
			fmt.Sprintf("Stale request timestamp from device %s at %s", req.DeviceID, ipAddress))
		sigDenial = deny(ReasonStaleTimestamp, "Request timestamp outside accepted window")
	}

	allowed, err := p.tracker.Allowed(ctx, req.DeviceID)
	if err != nil {
		// Tracker outage does not take the service down; the signature
		// check above still stands.
		slog.ErrorContext(ctx, "rate tracker check failed", logging.DeviceID(req.DeviceID), logging.Error(err))
		allowed = true
	}
	if !allowed {
		p.recordEvent(ctx, models.EventRateLimited, req, ipAddress)
		p.alert(ctx, models.EventRateLimited, req.DeviceID, ipAddress,
			fmt.Sprintf("Rate limit exceeded for device %s at %s", req.DeviceID, ipAddress))
		metrics.AdmissionTotal.WithLabelValues(string(ReasonRateLimited)).Inc()
		metrics.RateLimitDenials.Inc()
		return nil, deny(ReasonRateLimited, "Too many attempts")
	}

	if sigDenial != nil {
		metrics.AdmissionTotal.WithLabelValues(string(sigDenial.Reason)).Inc()
		return nil, sigDenial
	}

	g, err := p.issuer.Issue(ctx, req.DeviceID, req.FileKey)
	if err != nil {
		slog.ErrorContext(ctx, "grant issuance failed",
			logging.DeviceID(req.DeviceID), logging.FileKey(req.FileKey), logging.Error(err))
		p.recordEvent(ctx, models.EventIssuerError, req, ipAddress)
		metrics.AdmissionTotal.WithLabelValues(string(ReasonIssuerError)).Inc()
		return nil, deny(ReasonIssuerError, "Failed to generate URL")
	}

	if err := p.repo.RecordDownload(ctx, req.DeviceID, req.FileKey, ipAddress, userAgent); err != nil {
		// Analytics only; the grant stands.
		slog.WarnContext(ctx, "failed to record download counter",
			logging.DeviceID(req.DeviceID), logging.FileKey(req.FileKey), logging.Error(err))
	}
	p.recordEvent(ctx, models.EventDownloadGranted, req, ipAddress)
	metrics.AdmissionTotal.WithLabelValues("granted").Inc()
	metrics.GrantsIssued.Inc()

	return g, nil
}

// fresh reports whether the request timestamp is within the accepted window
// of server time. Replayed requests older than the window are rejected even
// with a valid signature.
func (p *Pipeline) fresh(timestamp string) bool {
	if p.maxSignatureAge == 0 {
		return true
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	age := p.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	return age <= p.maxSignatureAge
}

func (p *Pipeline) recordFailure(ctx context.Context, deviceID string) {
	if err := p.tracker.RecordFailure(ctx, deviceID); err != nil {
		slog.ErrorContext(ctx, "failed to record failed attempt", logging.DeviceID(deviceID), logging.Error(err))
	}
}

func (p *Pipeline) recordEvent(ctx context.Context, eventType string, req *models.DownloadRequest, ipAddress string) {
	event := &models.SecurityEvent{
		Timestamp: p.now().UTC(),
		EventType: eventType,
		DeviceID:  req.DeviceID,
		IPAddress: ipAddress,
		Details:   req.FileKey,
	}
	if err := p.repo.AppendSecurityEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "failed to append security event",
			slog.String("event_type", eventType), logging.DeviceID(req.DeviceID), logging.Error(err))
	}
}

func (p *Pipeline) alert(ctx context.Context, eventType, deviceID, ipAddress, message string) {
	alert := &alerting.Alert{
		Timestamp: p.now().UTC(),
		EventType: eventType,
		DeviceID:  deviceID,
		IPAddress: ipAddress,
		Message:   message,
	}
	if err := p.alerts.Publish(ctx, alert); err != nil {
		slog.ErrorContext(ctx, "failed to publish security alert", logging.Error(err))
	}
}
