package middleware

import (
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
)

const (
	// ContextActorKey is the gin context key holding the acting staff identity.
	ContextActorKey = "actor"
	// ActorHeader carries the acting staff identity.
	ActorHeader = "X-Actor"

	maxActorLength = 100
)

// Actor reads the caller identity from X-Actor, falling back to defaultActor. There is no
// authentication: the value is only recorded on ledger rows and audit entries.
func Actor(defaultActor string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := sanitizeActor(c.GetHeader(ActorHeader))
		if actor == "" {
			actor = defaultActor
		}
		c.Set(ContextActorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the actor stored by Actor, or an empty string.
func ActorFrom(c *gin.Context) string {
	return c.GetString(ContextActorKey)
}

func sanitizeActor(raw string) string {
	actor := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if len([]rune(actor)) > maxActorLength {
		actor = string([]rune(actor)[:maxActorLength])
	}
	return actor
}
