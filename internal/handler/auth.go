package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/pixelboard/internal/apperror"
	"github.com/sakif/pixelboard/internal/auth"
	"github.com/sakif/pixelboard/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler runs the Discord login flow and the session cookie.
//
// HANDLER RESPONSIBILITIES:
//   - HandleDiscordLogin    → redirect the browser to Discord's consent page
//   - HandleDiscordCallback → exchange the code, upsert user_details, set the token cookie
//   - HandleLogout          → clear the token cookie
//   - HandleMe              → return the identity the cookie carries
//
// The websocket reads the same cookie, so logging in here is what turns an
// anonymous observer into a painter on the next connect.
type AuthHandler struct {
	discord      *auth.DiscordProvider
	auth         *service.AuthService
	tokens       *auth.TokenService
	secureCookie bool
	logger       *slog.Logger
}

func NewAuthHandler(
	discord *auth.DiscordProvider,
	authService *service.AuthService,
	tokens *auth.TokenService,
	secureCookie bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		discord:      discord,
		auth:         authService,
		tokens:       tokens,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// HandleDiscordLogin redirects to Discord.
//
// HTTP: GET /auth/discord/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the
// authorize URL. The callback only proceeds if both come back equal.
func (h *AuthHandler) HandleDiscordLogin(w http.ResponseWriter, r *http.Request) {
	if !h.discord.Configured() {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "login_unavailable",
			Message: "Discord login is not configured",
		})
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.discord.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleDiscordCallback completes the login.
//
// HTTP: GET /auth/discord/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Check the state against the cookie
//  2. Exchange the code for the Discord profile
//  3. Upsert user_details and sign a token (AuthService)
//  4. Set the token cookie and go back to the canvas
func (h *AuthHandler) HandleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || q.Get("state") != c.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	user, err := h.discord.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: Discord exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	res, err := h.auth.LoginDiscord(r.Context(), user)
	if err != nil {
		h.logger.Error("auth callback: login failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the token cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so this only forgets the cookie. Sockets opened with
// the old token keep their identity until they reconnect.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the caller's identity.
//
// HTTP: GET /api/me
// Auth: RequireAuth
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, apperror.Unauthorized("not logged in"))
		return
	}
	writeJSON(w, http.StatusOK, id)
}
