// Package auth guards the dashboard and the read API with a single shared
// operator credential.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const realm = "analytics"

type Gate struct {
	user         [sha256.Size]byte
	password     [sha256.Size]byte
	passwordHash []byte
	log          *logrus.Entry
}

// NewGate builds a gate for the operator account. When passwordHash is a
// bcrypt hash it is used instead of the plain password.
func NewGate(logger *logrus.Logger, user, password, passwordHash string) *Gate {
	g := &Gate{
		user:     sha256.Sum256([]byte(user)),
		password: sha256.Sum256([]byte(password)),
		log:      logger.WithField("component", "auth"),
	}
	if passwordHash != "" {
		g.passwordHash = []byte(passwordHash)
	}
	return g
}

// Verify compares both fields in constant time over fixed-length digests.
// Both comparisons always run.
func (g *Gate) Verify(username, password string) bool {
	u := sha256.Sum256([]byte(username))
	userOK := subtle.ConstantTimeCompare(u[:], g.user[:])

	var passOK int
	if g.passwordHash != nil {
		if bcrypt.CompareHashAndPassword(g.passwordHash, []byte(password)) == nil {
			passOK = 1
		}
	} else {
		p := sha256.Sum256([]byte(password))
		passOK = subtle.ConstantTimeCompare(p[:], g.password[:])
	}

	return userOK&passOK == 1
}

// Middleware answers 401 with a Basic challenge unless the request carries
// the operator credentials.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !g.Verify(user, pass) {
			g.log.WithField("path", r.URL.Path).Debug("Rejected operator credentials")
			w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`", charset="UTF-8"`)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
