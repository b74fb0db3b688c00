package middlewares

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// AdminSecret guards the operational endpoints. Callers present the
// shared secret in the x-admin-secret header; an unset ADMIN_SECRET env
// closes the surface entirely.
func AdminSecret(ctx *gin.Context) {
	secret := os.Getenv("ADMIN_SECRET")
	if secret == "" {
		log.Println("[admin] ADMIN_SECRET is not configured; admin routes disabled")
		ctx.AbortWithStatus(http.StatusNotFound)
		return
	}
	provided := ctx.GetHeader("x-admin-secret")
	if provided == "" {
		err := errors.New("missing admin secret header")
		ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
		ctx.AbortWithStatus(http.StatusUnauthorized)
		return
	}
}
