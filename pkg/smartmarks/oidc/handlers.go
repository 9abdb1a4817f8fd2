package oidc

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mikepea/smartmarks/pkg/smartmarks/auth"
	"github.com/mikepea/smartmarks/pkg/smartmarks/logger"
	"github.com/mikepea/smartmarks/pkg/smartmarks/models"
)

const stateTTL = 10 * time.Minute

var errInvalidState = errors.New("invalid state")

// Handler handles Google sign-in
type Handler struct {
	db            *gorm.DB
	tokens        *auth.TokenManager
	authenticator Authenticator // nil when Google sign-in is not configured
	baseURL       string
	stateKey      []byte
	log           logger.Logger
	now           func() time.Time
}

// StateData round-trips through the provider in the state parameter
type StateData struct {
	ReturnURL string `json:"return_url"`
	Nonce     string `json:"nonce"`
	IssuedAt  int64  `json:"iat"`
}

// NewHandler creates a new OIDC handler. stateKey signs the state
// parameter so callbacks cannot be forged.
func NewHandler(db *gorm.DB, tokens *auth.TokenManager, authenticator Authenticator, baseURL string, stateKey []byte, log logger.Logger) *Handler {
	return &Handler{
		db:            db,
		tokens:        tokens,
		authenticator: authenticator,
		baseURL:       strings.TrimRight(baseURL, "/"),
		stateKey:      stateKey,
		log:           log,
		now:           time.Now,
	}
}

// RedirectURL is where Google sends the browser back to.
func RedirectURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/api/auth/google/callback"
}

// GetAuthURL returns the Google authorization URL
// @Summary Start Google sign-in
// @Tags auth
// @Produce json
// @Param return_url query string false "Where to send the token after sign-in"
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string "Google sign-in not configured"
// @Router /auth/google [get]
func (h *Handler) GetAuthURL(c *gin.Context) {
	if h.authenticator == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Google sign-in is not configured"})
		return
	}

	returnURL := c.Query("return_url")
	if returnURL != "" && !h.allowedReturnURL(returnURL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "return_url not allowed"})
		return
	}

	nonce, err := randomString(32)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start sign-in"})
		return
	}
	state, err := h.encodeState(StateData{ReturnURL: returnURL, Nonce: nonce, IssuedAt: h.now().Unix()})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start sign-in"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"auth_url": h.authenticator.AuthCodeURL(state, nonce)})
}

// Callback finishes Google sign-in
// @Summary Google sign-in callback
// @Tags auth
// @Produce json
// @Param state query string true "State from GetAuthURL"
// @Param code query string true "Authorization code"
// @Success 200 {object} auth.AuthResponse
// @Success 302 "Redirect to return_url with token"
// @Failure 400 {object} map[string]string
// @Router /auth/google/callback [get]
func (h *Handler) Callback(c *gin.Context) {
	if h.authenticator == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Google sign-in is not configured"})
		return
	}

	stateData, err := h.decodeState(c.Query("state"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state"})
		return
	}

	code := c.Query("code")
	if code == "" {
		errorDesc := c.Query("error_description")
		if errorDesc == "" {
			errorDesc = c.Query("error")
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authentication failed: " + errorDesc})
		return
	}

	identity, err := h.authenticator.Exchange(c.Request.Context(), code)
	if err != nil {
		h.log.Warn("google code exchange failed", logger.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Failed to verify Google sign-in"})
		return
	}

	if identity.Nonce != stateData.Nonce {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid nonce"})
		return
	}
	if identity.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email not provided by identity provider"})
		return
	}

	user, err := h.findOrCreateUser(identity)
	if err != nil {
		h.log.Error("google user provisioning failed", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process user"})
		return
	}

	token, err := h.tokens.Generate(user.ID, user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	if stateData.ReturnURL != "" {
		target, _ := url.Parse(stateData.ReturnURL)
		q := target.Query()
		q.Set("token", token)
		target.RawQuery = q.Encode()
		c.Redirect(http.StatusFound, target.String())
		return
	}

	c.JSON(http.StatusOK, auth.AuthResponse{Token: token, User: auth.NewUserResponse(*user)})
}

// findOrCreateUser resolves an identity to a user: by linked subject,
// then by email (linking it), and finally by creating a new account.
func (h *Handler) findOrCreateUser(id *Identity) (*models.User, error) {
	var identity models.OIDCIdentity
	err := h.db.Where("provider = ? AND subject = ?", models.ProviderGoogle, id.Subject).First(&identity).Error
	if err == nil {
		var user models.User
		if err := h.db.First(&user, identity.UserID).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	email := strings.ToLower(id.Email)
	var user models.User
	err = h.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ?", email).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			name := id.Name
			if name == "" {
				name = strings.SplitN(email, "@", 2)[0]
			}
			user = models.User{Email: email, Name: name}
			err = tx.Create(&user).Error
		}
		if err != nil {
			return err
		}
		return tx.Create(&models.OIDCIdentity{
			UserID:   user.ID,
			Provider: models.ProviderGoogle,
			Subject:  id.Subject,
			Email:    email,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// allowedReturnURL accepts the service's own origin and loopback
// addresses, which the CLI listens on during sign-in.
func (h *Handler) allowedReturnURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if u.Scheme == "http" && (u.Hostname() == "127.0.0.1" || u.Hostname() == "localhost") {
		return true
	}
	base, err := url.Parse(h.baseURL)
	if err != nil {
		return false
	}
	return u.Scheme == base.Scheme && u.Host == base.Host
}

func (h *Handler) encodeState(s StateData) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding.EncodeToString(payload)
	return enc + "." + h.sign(enc), nil
}

func (h *Handler) decodeState(state string) (*StateData, error) {
	enc, sig, ok := strings.Cut(state, ".")
	if !ok || !hmac.Equal([]byte(sig), []byte(h.sign(enc))) {
		return nil, errInvalidState
	}
	payload, err := base64.RawURLEncoding.DecodeString(enc)
	if err != nil {
		return nil, errInvalidState
	}
	var s StateData
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, errInvalidState
	}
	if h.now().Sub(time.Unix(s.IssuedAt, 0)) > stateTTL {
		return nil, errInvalidState
	}
	return &s, nil
}

func (h *Handler) sign(enc string) string {
	mac := hmac.New(sha256.New, h.stateKey)
	mac.Write([]byte(enc))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}

// RegisterRoutes registers the Google sign-in routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/google", h.GetAuthURL)
	rg.GET("/google/callback", h.Callback)
}
