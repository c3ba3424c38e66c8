package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	userIDKey = "user_id"
	nameKey   = "name"
	avatarKey = "avatar"
)

type user struct {
	ID     string
	Name   string
	Avatar string
}

// parseJWT verifies an HS256 token issued by the auth provider.
func (c controller) parseJWT(tokenString string) (user, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(c.cfg.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return user{}, err
	}

	if !token.Valid {
		return user{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return user{}, ErrInvalidToken
	}

	userID, ok := claims[userIDKey].(string)
	if !ok || userID == "" {
		return user{}, ErrInvalidToken
	}

	name, _ := claims[nameKey].(string)
	avatar, _ := claims[avatarKey].(string)

	return user{ID: userID, Name: name, Avatar: avatar}, nil
}

// getToken reads the bearer token, falling back to the token query parameter
// for browsers that cannot set headers on websocket requests.
func getToken(r *http.Request) string {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return token
	}

	return r.URL.Query().Get("token")
}
