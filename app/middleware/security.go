package middleware

import (
	"net"
	"strings"

	"github.com/gofiber/fiber/v3"
)

type errorBody struct {
	Message string `json:"message"`
}

// IPWhitelist admits only the listed addresses or CIDR ranges; an empty list admits everyone
func IPWhitelist(allowed []string) fiber.Handler {
	var (
		ips  = make(map[string]struct{})
		nets []*net.IPNet
	)
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, n, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, n)
			continue
		}
		ips[entry] = struct{}{}
	}
	open := len(ips) == 0 && len(nets) == 0

	return func(c fiber.Ctx) error {
		if open || ipAllowed(c.IP(), ips, nets) {
			return c.Next()
		}
		return c.Status(fiber.StatusForbidden).JSON(errorBody{Message: "Forbidden: IP not whitelisted"})
	}
}

func ipAllowed(raw string, ips map[string]struct{}, nets []*net.IPNet) bool {
	if _, ok := ips[raw]; ok {
		return true
	}
	ip := net.ParseIP(raw)
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// RequireJSONContent rejects request bodies that are not declared as application/json
func RequireJSONContent() fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Next()
		}
		if !strings.HasPrefix(strings.ToLower(c.Get(fiber.HeaderContentType)), fiber.MIMEApplicationJSON) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(errorBody{Message: "Unsupported Media Type: application/json required"})
		}
		return c.Next()
	}
}
