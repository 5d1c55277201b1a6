package web

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookie = "musaix_session"

type user struct {
	Name  string
	Email string
}

type sessions struct {
	secret []byte
	ttl    time.Duration
	secure bool
}

func newSessions(secret string, ttl time.Duration) (*sessions, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("web: couldn't generate session secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &sessions{secret: key, ttl: ttl}, nil
}

func (s *sessions) issue(u *user) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  u.Email,
		"name": u.Name,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("web: couldn't sign session: %w", err)
	}
	return signed, exp, nil
}

func (s *sessions) parse(tokenString string) (*user, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("web: invalid session: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("web: invalid session payload")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, errors.New("web: session without subject")
	}
	name, _ := claims["name"].(string)
	return &user{Name: name, Email: sub}, nil
}

// login sets the session cookie.
func (s *sessions) login(w http.ResponseWriter, u *user) error {
	token, exp, err := s.issue(u)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *sessions) logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
	})
}

// user returns the user of the request from the session cookie or from a
// bearer token.
func (s *sessions) user(r *http.Request) (*user, bool) {
	var token string
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		token = strings.TrimPrefix(h, "Bearer ")
	}
	if token == "" {
		c, err := r.Cookie(sessionCookie)
		if err != nil {
			return nil, false
		}
		token = c.Value
	}
	u, err := s.parse(token)
	if err != nil {
		return nil, false
	}
	return u, true
}
