package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"

	"github.com/ShravaniMogali/4GB-sub001/internal/consignment"
	"github.com/ShravaniMogali/4GB-sub001/internal/identity"
	"github.com/ShravaniMogali/4GB-sub001/internal/ledger"
	"github.com/ShravaniMogali/4GB-sub001/internal/models"
)

var log = logging.Logger("handlers")

// Ledger is the administrative surface of the ledger gateway.
type Ledger interface {
	SetContract(ctx context.Context, address common.Address) error
	ContractAddress() (common.Address, bool)
	Head(ctx context.Context) (*ledger.Head, error)
}

type Handlers struct {
	identity      *identity.Service
	consignments  *consignment.Service
	ledger        Ledger
	schemaVersion string
}

func NewHandlers(ids *identity.Service, consignments *consignment.Service, l Ledger) *Handlers {
	return &Handlers{
		identity:      ids,
		consignments:  consignments,
		ledger:        l,
		schemaVersion: ledger.SchemaVersion,
	}
}

func (h *Handlers) HealthCheck(c echo.Context) error {
	head, err := h.ledger.Head(c.Request().Context())
	if err != nil {
		log.Warnw("Health check failed", "error", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   models.ErrorLedgerUnreachable,
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	}
	return c.JSON(http.StatusOK, models.HealthResponse{
		Status:      "healthy",
		BlockNumber: head.Number,
		Timestamp:   head.Time.Format(time.RFC3339),
	})
}

func (h *Handlers) RegisterPrincipal(c echo.Context) error {
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.ID == "" || req.Credential == "" || req.Role == "" {
		return badRequest(c, "id, credential and role are required")
	}

	sess, err := h.identity.Register(c.Request().Context(), req.ID, req.Credential, identity.Role(req.Role))
	if err != nil {
		return respondError(c, "register", err)
	}
	return c.JSON(http.StatusCreated, models.RegisterResponse{
		Address:   sess.Principal.Address.Hex(),
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
}

// Authenticate answers every failure with the same 401 body so callers cannot
// tell which principal ids exist.
func (h *Handlers) Authenticate(c echo.Context) error {
	var req models.AuthRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	sess, err := h.identity.Authenticate(c.Request().Context(), req.ID, req.Credential)
	if err != nil {
		if errors.Is(err, identity.ErrPrincipalNotFound) || errors.Is(err, identity.ErrInvalidCredential) {
			return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Error:   models.ErrorAuth,
				Message: "invalid credentials",
				Code:    http.StatusUnauthorized,
			})
		}
		return respondError(c, "authenticate", err)
	}
	return c.JSON(http.StatusOK, models.AuthResponse{
		Token:     sess.Token,
		Address:   sess.Principal.Address.Hex(),
		Role:      string(sess.Principal.Role),
		ExpiresAt: sess.ExpiresAt,
	})
}

func (h *Handlers) Me(c echo.Context) error {
	p, _ := principalFrom(c)
	return c.JSON(http.StatusOK, models.PrincipalResponse{
		ID:      p.ID,
		Role:    string(p.Role),
		Address: p.Address.Hex(),
	})
}

func (h *Handlers) RotateCredential(c echo.Context) error {
	p, _ := principalFrom(c)
	var req models.RotateCredentialRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.NewCredential == "" {
		return badRequest(c, "newCredential is required")
	}
	if err := h.identity.RotateCredential(c.Request().Context(), p.ID, req.CurrentCredential, req.NewCredential); err != nil {
		return respondError(c, "rotate credential", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handlers) SetContract(c echo.Context) error {
	var req models.SetContractRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if !common.IsHexAddress(req.Address) {
		return badRequest(c, "invalid contract address")
	}
	address := common.HexToAddress(req.Address)
	if err := h.ledger.SetContract(c.Request().Context(), address); err != nil {
		return respondError(c, "set contract", err)
	}
	p, _ := principalFrom(c)
	log.Infow("Contract location updated", "address", address, "by", p.ID)
	return c.JSON(http.StatusOK, models.ContractResponse{
		Address: address.Hex(),
		Schema:  h.schemaVersion,
	})
}

func (h *Handlers) GetContract(c echo.Context) error {
	address, ok := h.ledger.ContractAddress()
	if !ok {
		return respondError(c, "get contract", ledger.ErrNotConfigured)
	}
	return c.JSON(http.StatusOK, models.ContractResponse{
		Address: address.Hex(),
		Schema:  h.schemaVersion,
	})
}

func (h *Handlers) CreateConsignment(c echo.Context) error {
	p, _ := principalFrom(c)
	var req models.CreateConsignmentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	res, err := h.consignments.Create(c.Request().Context(), p, consignment.CreateParams{
		ConsignmentID:  req.ConsignmentID,
		ProductName:    req.ProductName,
		ProductionDate: req.ProductionDate,
		FarmLocation:   req.FarmLocation,
		ProducerInfo:   req.ProducerInfo,
	})
	if err != nil {
		return respondError(c, "create consignment", err)
	}
	return c.JSON(http.StatusCreated, transactionResponse(res))
}

func (h *Handlers) UpdateStatus(c echo.Context) error {
	p, _ := principalFrom(c)
	var req models.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	res, err := h.consignments.UpdateStatus(c.Request().Context(), p, id, req.Status, req.Location)
	if err != nil {
		return respondError(c, "update status", err)
	}
	return c.JSON(http.StatusOK, transactionResponse(res))
}

func (h *Handlers) GetConsignment(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	details, err := h.consignments.Details(c.Request().Context(), id)
	if err != nil {
		return respondError(c, "get consignment", err)
	}
	return c.JSON(http.StatusOK, models.Consignment{
		ConsignmentID:      details.ConsignmentID,
		ProductName:        details.ProductName,
		ProductionDate:     details.ProductionDate,
		FarmLocation:       details.FarmLocation,
		ProducerInfo:       details.ProducerInfo,
		CurrentStatus:      details.CurrentStatus,
		CurrentLocation:    details.CurrentLocation,
		ProducerAddress:    details.ProducerAddress.Hex(),
		CreatedAtTimestamp: unix(details.CreatedAt),
	})
}

func (h *Handlers) GetHistory(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	history, err := h.consignments.History(c.Request().Context(), id)
	if err != nil {
		return respondError(c, "get history", err)
	}
	out := make([]models.StatusUpdate, 0, len(history))
	for _, u := range history {
		out = append(out, models.StatusUpdate{
			ConsignmentID:   u.ConsignmentID,
			Status:          u.Status,
			Location:        u.Location,
			HandlerAddress:  u.HandlerAddress.Hex(),
			Timestamp:       unix(u.Timestamp),
			BlockNumber:     u.BlockNumber,
			TransactionHash: hashOrEmpty(u.TransactionHash),
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handlers) GetTrail(c echo.Context) error {
	id, err := idParam(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	trail, err := h.consignments.Trail(c.Request().Context(), id)
	if err != nil {
		return respondError(c, "get trail", err)
	}
	out := make([]models.TrailEntry, 0, len(trail))
	for _, e := range trail {
		out = append(out, models.TrailEntry{
			Event:           string(e.Kind),
			Actor:           e.Actor.Hex(),
			ProductName:     e.ProductName,
			Status:          e.Status,
			Location:        e.Location,
			Timestamp:       unix(e.Timestamp),
			BlockNumber:     e.BlockNumber,
			TransactionHash: hashOrEmpty(e.TransactionHash),
		})
	}
	return c.JSON(http.StatusOK, out)
}

// idParam returns the consignment id from the path. Echo routes on the raw
// path when the request carries one (an escaped '/' for instance) and then
// leaves params escaped; otherwise they are already decoded.
func idParam(c echo.Context) (string, error) {
	id := c.Param("id")
	if c.Request().URL.RawPath == "" {
		return id, nil
	}
	id, err := url.PathUnescape(id)
	if err != nil {
		return "", fmt.Errorf("invalid consignment id in path: %w", err)
	}
	return id, nil
}

func transactionResponse(res *consignment.Result) models.TransactionResponse {
	return models.TransactionResponse{
		TransactionHash: res.TransactionHash.Hex(),
		ConsignmentID:   res.ConsignmentID,
		Status:          res.Status,
		BlockNumber:     res.BlockNumber,
	}
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func hashOrEmpty(h common.Hash) string {
	if h == (common.Hash{}) {
		return ""
	}
	return h.Hex()
}
