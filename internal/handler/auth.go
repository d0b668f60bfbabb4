package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/foodlens/internal/apperror"
	"github.com/sakif/foodlens/internal/auth"
	"github.com/sakif/foodlens/internal/metrics"
	"github.com/sakif/foodlens/internal/model"
)

// AuthService is the part of service.AuthService the handlers need.
type AuthService interface {
	Register(ctx context.Context, email, password, name string) error
	Login(ctx context.Context, email, password string) (string, error)
	FederatedLogin(ctx context.Context, email, name string) (string, error)
	FederatedSignIn(ctx context.Context, assertion auth.FederatedAssertion) (string, error)
	WhoAmI(ctx context.Context, token string) (*model.Identity, error)
}

// GoogleFlow is the browser authorization-code flow. *auth.GoogleProvider
// implements it.
type GoogleFlow interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (auth.FederatedIdentity, error)
}

const stateCookie = "oauth_state"

// AuthHandler serves registration, login and the current-identity endpoint.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister       → create a password identity
//   - HandleLogin          → exchange email and password for a token
//   - HandleFederated      → exchange a federated assertion for a token
//   - HandleMe             → return the caller's profile
//   - HandleGoogleLogin    → redirect the browser to Google
//   - HandleGoogleCallback → finish the code flow and return a token
type AuthHandler struct {
	svc     AuthService
	google  GoogleFlow
	metrics metrics.Recorder
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler. google may be nil, in which case
// the browser flow answers 404.
func NewAuthHandler(svc AuthService, google GoogleFlow, rec metrics.Recorder, logger *slog.Logger) *AuthHandler {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &AuthHandler{
		svc:     svc,
		google:  google,
		metrics: rec,
		logger:  logger,
	}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,max=254"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"max=200"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type federatedRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	IDToken      string `json:"idToken"`
	IDTokenSnake string `json:"id_token"`
}

// MeResponse is the public view of an identity.
type MeResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// HandleRegister creates a new password identity.
//
// HTTP: POST /register
// REQUEST BODY: {"email": "a@x.com", "password": "...", "name": "Ann"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := bindJSON(w, r, &req); err != nil {
		h.metrics.AuthAttempt("register", err)
		writeError(w, err)
		return
	}

	err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	h.metrics.AuthAttempt("register", err)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Msg: "Registered successfully"})
}

// HandleLogin verifies a password and issues a token.
//
// HTTP: POST /login
// REQUEST BODY: {"email": "a@x.com", "password": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := bindJSON(w, r, &req); err != nil {
		h.metrics.AuthAttempt("login", err)
		writeError(w, err)
		return
	}

	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	h.metrics.AuthAttempt("login", err)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

// HandleFederated signs in with an identity asserted by Google.
//
// HTTP: POST /google-auth?email=...&name=...&id_token=...
//
// Older mobile builds send the fields as query parameters; newer ones send
// a JSON body. Query parameters win when both are present.
func (h *AuthHandler) HandleFederated(w http.ResponseWriter, r *http.Request) {
	assertion, err := h.readAssertion(w, r)
	if err != nil {
		h.metrics.AuthAttempt("federated", err)
		writeError(w, err)
		return
	}

	token, err := h.svc.FederatedSignIn(r.Context(), assertion)
	h.metrics.AuthAttempt("federated", err)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}

func (h *AuthHandler) readAssertion(w http.ResponseWriter, r *http.Request) (auth.FederatedAssertion, error) {
	q := r.URL.Query()
	if q.Has("email") || q.Has("id_token") {
		return auth.FederatedAssertion{
			IDToken: q.Get("id_token"),
			Email:   q.Get("email"),
			Name:    q.Get("name"),
		}, nil
	}

	if r.ContentLength == 0 {
		return auth.FederatedAssertion{}, apperror.ValidationFailed("email", "email is required")
	}

	var req federatedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return auth.FederatedAssertion{}, err
	}
	idToken := req.IDToken
	if idToken == "" {
		idToken = req.IDTokenSnake
	}
	return auth.FederatedAssertion{IDToken: idToken, Email: req.Email, Name: req.Name}, nil
}

// HandleMe returns the identity behind the bearer token.
//
// HTTP: GET /me
// Requires auth.RequireBearer in front of it.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())

	identity, err := h.svc.WhoAmI(r.Context(), token)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{Email: identity.Email, Name: identity.Name})
}

// HandleGoogleLogin redirects the browser to Google's consent page.
//
// HTTP: GET /auth/google/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the
// authorization URL. HandleGoogleCallback only proceeds when both match.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeError(w, apperror.NotFound("provider", "google"))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the code flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a verified Google identity
//  3. Create or update the federated identity
//  4. Return an access token
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeError(w, apperror.NotFound("provider", "google"))
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("google callback: state mismatch")
		writeError(w, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("google callback: user denied authorization", slog.String("error", errParam))
		writeError(w, apperror.Unauthorized("Authorization was denied"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "Missing OAuth code"))
		return
	}

	identity, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("google callback: exchange failed", slog.String("error", err.Error()))
		h.metrics.AuthAttempt("federated", apperror.Unauthorized(err.Error()))
		writeError(w, apperror.Unauthorized("Could not verify federated identity"))
		return
	}

	token, err := h.svc.FederatedLogin(r.Context(), identity.Email, identity.Name)
	h.metrics.AuthAttempt("federated", err)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, TokenResponse{Token: token})
}
