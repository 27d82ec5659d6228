package printservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/realworldtech/props-print-service/internal/db"
	"github.com/realworldtech/props-print-service/internal/models"
	"github.com/realworldtech/props-print-service/internal/pubsub"
)

// DispatchStore is the persistence surface the dispatcher needs.
type DispatchStore interface {
	GetPrintClient(ctx context.Context, id uuid.UUID) (*models.PrintClient, error)
	UpdatePrintRequestStatus(ctx context.Context, req *models.PrintRequest) error
	GetAsset(ctx context.Context, id uuid.UUID) (*models.Asset, error)
	GetLocation(ctx context.Context, id uuid.UUID) (*models.Location, error)
	ListLocationCategoryNames(ctx context.Context, locationID uuid.UUID) ([]string, error)
	ListLocationDepartmentNames(ctx context.Context, locationID uuid.UUID) ([]string, error)
}

// DispatcherConfig holds dispatcher settings.
type DispatcherConfig struct {
	// SiteURL is the base URL encoded into label QR codes.
	SiteURL string
}

// Dispatcher pushes print jobs to connected clients through the group layer.
// Dispatch is fail-fast: every failure is recorded on the request as a
// failed transition with a human-readable message, never raised to the
// caller. Retry is owned entirely by the stale-job sweep plus whoever
// submits a fresh request.
type Dispatcher struct {
	store  DispatchStore
	layer  pubsub.Layer
	config DispatcherConfig
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store DispatchStore, layer pubsub.Layer, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:  store,
		layer:  layer,
		config: cfg,
		logger: logger.With().Str("component", "print_dispatch").Logger(),
	}
}

// Dispatch sends one print request to its client's live session. It reports
// true only when the job was published; on any failure the request ends up
// failed with the reason in error_message. The client record is re-read
// fresh on every call because is_connected is eventually consistent.
func (d *Dispatcher) Dispatch(ctx context.Context, req *models.PrintRequest) bool {
	if req.PrintClientID == nil {
		return d.fail(ctx, req, "No print client assigned")
	}

	client, err := d.store.GetPrintClient(ctx, *req.PrintClientID)
	if errors.Is(err, db.ErrNotFound) {
		return d.fail(ctx, req, "Print client no longer exists")
	}
	if err != nil {
		return d.fail(ctx, req, fmt.Sprintf("Failed to load print client: %v", err))
	}

	if !client.IsConnected {
		return d.fail(ctx, req, "Client disconnected")
	}

	if !client.HasPrinter(req.PrinterID) {
		return d.fail(ctx, req, fmt.Sprintf("Printer '%s' is not available on client '%s'", req.PrinterID, client.Name))
	}

	if req.LabelType == models.LabelTypeLocation && !client.SupportsLocationLabels() {
		return d.fail(ctx, req, fmt.Sprintf("Client '%s' does not support location labels (protocol version %s)", client.Name, client.ProtocolVersion))
	}

	job, buildErr := d.buildJob(ctx, req)
	if buildErr != "" {
		return d.fail(ctx, req, buildErr)
	}

	// The request is marked sent before the publish so a job that reaches
	// the client is never still pending; a failed publish rolls it to
	// failed immediately after.
	if err := req.TransitionTo(models.PrintRequestStatusSent, ""); err != nil {
		d.logger.Error().Err(err).Str("job_id", req.JobID.String()).Msg("print request not dispatchable")
		return false
	}
	if err := d.store.UpdatePrintRequestStatus(ctx, req); err != nil {
		d.logger.Error().Err(err).Str("job_id", req.JobID.String()).Msg("failed to persist sent transition")
		return false
	}

	event, err := pubsub.NewEvent(pubsub.EventPrintJob, job)
	if err != nil {
		return d.fail(ctx, req, fmt.Sprintf("Failed to encode print job: %v", err))
	}
	if err := d.layer.Send(ctx, ActiveGroup(client.ID), event); err != nil {
		return d.fail(ctx, req, fmt.Sprintf("Failed to publish print job: %v", err))
	}

	d.logger.Info().
		Str("job_id", req.JobID.String()).
		Str("client_id", client.ID.String()).
		Str("printer_id", req.PrinterID).
		Str("label_type", string(req.LabelType)).
		Int("quantity", req.Quantity).
		Msg("print job dispatched")
	return true
}

// buildJob assembles the label-type-specific payload. A non-empty string
// return is the failure reason.
func (d *Dispatcher) buildJob(ctx context.Context, req *models.PrintRequest) (PrintJobMessage, string) {
	switch req.LabelType {
	case models.LabelTypeAsset:
		if req.AssetID == nil {
			return PrintJobMessage{}, "Print request has no asset"
		}
		asset, err := d.store.GetAsset(ctx, *req.AssetID)
		if errors.Is(err, db.ErrNotFound) {
			return PrintJobMessage{}, "Asset no longer exists"
		}
		if err != nil {
			return PrintJobMessage{}, fmt.Sprintf("Failed to load asset: %v", err)
		}
		return buildAssetJob(req, asset, d.config.SiteURL), ""

	case models.LabelTypeLocation:
		if req.LocationID == nil {
			return PrintJobMessage{}, "Print request has no location"
		}
		location, err := d.store.GetLocation(ctx, *req.LocationID)
		if errors.Is(err, db.ErrNotFound) {
			return PrintJobMessage{}, "Location no longer exists"
		}
		if err != nil {
			return PrintJobMessage{}, fmt.Sprintf("Failed to load location: %v", err)
		}
		categories, err := d.store.ListLocationCategoryNames(ctx, location.ID)
		if err != nil {
			return PrintJobMessage{}, fmt.Sprintf("Failed to load location categories: %v", err)
		}
		departments, err := d.store.ListLocationDepartmentNames(ctx, location.ID)
		if err != nil {
			return PrintJobMessage{}, fmt.Sprintf("Failed to load location departments: %v", err)
		}
		return buildLocationJob(req, location, categories, departments, d.config.SiteURL), ""

	default:
		return PrintJobMessage{}, fmt.Sprintf("Unknown label type '%s'", req.LabelType)
	}
}

// fail records a terminal failure on the request. Always returns false so
// callers can `return d.fail(...)`.
func (d *Dispatcher) fail(ctx context.Context, req *models.PrintRequest, message string) bool {
	if err := req.TransitionTo(models.PrintRequestStatusFailed, message); err != nil {
		d.logger.Error().Err(err).
			Str("job_id", req.JobID.String()).
			Str("reason", message).
			Msg("could not record dispatch failure")
		return false
	}
	if err := d.store.UpdatePrintRequestStatus(ctx, req); err != nil {
		d.logger.Error().Err(err).Str("job_id", req.JobID.String()).Msg("failed to persist dispatch failure")
		return false
	}

	d.logger.Warn().
		Str("job_id", req.JobID.String()).
		Str("reason", message).
		Msg("print job dispatch failed")
	return false
}
