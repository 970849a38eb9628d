package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"

	"github.com/xenking/bazaar/internal/domain/auth"
)

// Claims is the JWT payload accepted by the API. The subject is the
// principal ID.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator validates HMAC-signed bearer tokens and issues new ones.
type Authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewAuthenticator returns an Authenticator for secret. An empty issuer
// disables the issuer check.
func NewAuthenticator(secret []byte, issuer string) *Authenticator {
	return &Authenticator{secret: secret, issuer: issuer, leeway: 30 * time.Second, now: time.Now}
}

var errUnauthenticated = errors.New("unauthenticated")

// Issue signs a token for p valid for ttl.
func (a *Authenticator) Issue(p auth.Principal, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		Role: string(p.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return s, nil
}

// Parse validates raw and returns the principal it carries.
func (a *Authenticator) Parse(raw string) (auth.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.leeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return auth.Principal{}, errors.Wrap(errUnauthenticated, err.Error())
	}

	p := auth.Principal{ID: claims.Subject, Role: auth.Role(claims.Role)}
	if p.ID == "" || !p.Role.Valid() {
		return auth.Principal{}, errors.Wrap(errUnauthenticated, "token lacks subject or role")
	}
	return p, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// principal in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			unauthorized(w, "missing bearer token")
			return
		}
		p, err := a.Parse(raw)
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	})
}

func unauthorized(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	writeError(w, http.StatusUnauthorized, "unauthorized", desc)
}
