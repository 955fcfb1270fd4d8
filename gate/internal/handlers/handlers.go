// Package handlers exposes the gate HTTP API.
package handlers

import (
	"time"

	"github.com/seaward-systems/fleetgate/common/signing"
	"github.com/seaward-systems/fleetgate/gate/internal/admission"
	"github.com/seaward-systems/fleetgate/gate/internal/blobstore"
	"github.com/seaward-systems/fleetgate/gate/internal/grant"
	"github.com/seaward-systems/fleetgate/gate/internal/repository"
)

// Version is reported by the banner endpoint.
const Version = "1.0.0"

// Handler carries the wired dependencies for all gate routes.
type Handler struct {
	pipeline        *admission.Pipeline
	issuer          *grant.Issuer
	store           blobstore.Store
	repo            repository.Repository
	signer          *signing.Signer
	maxSignatureAge time.Duration
	adminToken      string
}

func New(
	pipeline *admission.Pipeline,
	issuer *grant.Issuer,
	store blobstore.Store,
	repo repository.Repository,
	signer *signing.Signer,
	maxSignatureAge time.Duration,
	adminToken string,
) *Handler {
	return &Handler{
		pipeline:        pipeline,
		issuer:          issuer,
		store:           store,
		repo:            repo,
		signer:          signer,
		maxSignatureAge: maxSignatureAge,
		adminToken:      adminToken,
	}
}
