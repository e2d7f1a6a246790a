package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/tendant/video-intake/pkg/intake"
	"github.com/tendant/video-intake/pkg/intake/auth"
)

// Mint results reported to a MintObserver
const (
	MintIssued          = "issued"
	MintUnauthenticated = "unauthenticated"
	MintFailed          = "failed"
)

// MintObserver counts mint requests by result
type MintObserver interface {
	ObserveMint(result string)
}

// UploadHandler serves upload intents to authenticated clients
type UploadHandler struct {
	signer        *intake.Signer
	authenticator auth.Authenticator
	observer      MintObserver
	logger        *slog.Logger
}

// UploadHandlerOption configures an UploadHandler
type UploadHandlerOption func(*UploadHandler)

// WithMintObserver reports every mint request
func WithMintObserver(o MintObserver) UploadHandlerOption {
	return func(h *UploadHandler) {
		h.observer = o
	}
}

// WithHandlerLogger sets the logger
func WithHandlerLogger(logger *slog.Logger) UploadHandlerOption {
	return func(h *UploadHandler) {
		h.logger = logger
	}
}

// NewUploadHandler creates the handler. authenticator may be nil only when
// the signer issues anonymous intents.
func NewUploadHandler(signer *intake.Signer, authenticator auth.Authenticator, opts ...UploadHandlerOption) *UploadHandler {
	h := &UploadHandler{
		signer:        signer,
		authenticator: authenticator,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router for upload endpoints
func (h *UploadHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/upload-url", h.GetUploadURL)
	return r
}

// UploadURLResponse is returned by GET /upload-url
type UploadURLResponse struct {
	UploadAuthorization *intake.Authorization `json:"uploadAuthorization"`
	ObjectKey           string                `json:"objectKey"`
	RequiredMetadata    RequiredMetadata      `json:"requiredMetadata"`
	ContentType         string                `json:"contentType"`
}

// RequiredMetadata echoes the signed intent values the upload must carry
type RequiredMetadata struct {
	UserID    string `json:"userId"`
	Nonce     string `json:"nonce"`
	Expiry    int64  `json:"expiry"`
	Signature string `json:"signature"`
}

// ErrorResponse is the body of every error answer
type ErrorResponse struct {
	Error string `json:"error"`
}

// GetUploadURL mints an upload intent for the bearer of the request token
func (h *UploadHandler) GetUploadURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var userID string
	if token := jwtauth.TokenFromHeader(r); token != "" && h.authenticator != nil {
		id, err := h.authenticator.Authenticate(ctx, token)
		if errors.Is(err, intake.ErrUnauthenticated) {
			h.logger.InfoContext(ctx, "rejected upload-url request", "err", err)
			h.fail(w, r, http.StatusUnauthorized, "Invalid token", MintUnauthenticated)
			return
		}
		if err != nil {
			h.logger.ErrorContext(ctx, "token verification failed", "err", err)
			h.fail(w, r, http.StatusInternalServerError, "Server error", MintFailed)
			return
		}
		userID = id
	}

	grant, err := h.signer.Mint(ctx, userID)
	if errors.Is(err, intake.ErrUnauthenticated) {
		h.fail(w, r, http.StatusUnauthorized, "Missing token", MintUnauthenticated)
		return
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to mint upload intent", "user_id", userID, "err", err)
		h.fail(w, r, http.StatusInternalServerError, "Server error", MintFailed)
		return
	}

	h.logger.InfoContext(ctx, "issued upload intent",
		"user_id", grant.Intent.UserID,
		"key", grant.ObjectKey,
		"method", grant.Authorization.Method,
		"exp", grant.Intent.ExpiresAt)
	h.observe(MintIssued)

	render.JSON(w, r, UploadURLResponse{
		UploadAuthorization: grant.Authorization,
		ObjectKey:           grant.ObjectKey,
		RequiredMetadata: RequiredMetadata{
			UserID:    grant.Intent.UserID,
			Nonce:     grant.Intent.Nonce,
			Expiry:    grant.Intent.ExpiresAt,
			Signature: grant.Intent.Signature,
		},
		ContentType: grant.ContentType,
	})
}

func (h *UploadHandler) fail(w http.ResponseWriter, r *http.Request, status int, msg, result string) {
	h.observe(result)
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

func (h *UploadHandler) observe(result string) {
	if h.observer != nil {
		h.observer.ObserveMint(result)
	}
}
