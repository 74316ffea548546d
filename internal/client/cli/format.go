package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/stylist/internal/client/client"
	"github.com/dmitrijs2005/stylist/internal/client/models"
	"github.com/dmitrijs2005/stylist/internal/client/services"
)

// describeError turns API failures into a line a user can act on.
func describeError(err error) string {
	var apiErr *client.APIError
	hasAPI := errors.As(err, &apiErr)

	switch {
	case errors.Is(err, client.ErrNotLoggedIn):
		return "not logged in, use register, login or guest first"
	case errors.Is(err, client.ErrUpgradeRequired):
		if hasAPI {
			return fmt.Sprintf("this feature needs a %v subscription (current: %v)",
				apiErr.Details["required_tier"], apiErr.Details["current_tier"])
		}
		return "this feature needs a PREMIUM subscription"
	case errors.Is(err, client.ErrQuotaExceeded):
		if hasAPI {
			return fmt.Sprintf("monthly quota used up (%v of %v)", apiErr.Details["used"], apiErr.Details["limit"])
		}
		return "monthly quota used up"
	case errors.Is(err, client.ErrUnauthorized):
		return "session expired, please log in again"
	case errors.Is(err, services.ErrInvalidOutfitRequest):
		return err.Error()
	case hasAPI && apiErr.RetryAfter > 0:
		return fmt.Sprintf("%s, retry in %s", apiErr.Message, apiErr.RetryAfter)
	case hasAPI && apiErr.Message != "":
		return apiErr.Message
	}
	return err.Error()
}

func formatEntitlement(e models.Entitlement) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", e.Tier, strings.ToLower(e.Status))
	if e.Limit == models.UnlimitedQuota {
		fmt.Fprintf(&b, ", %d used, unlimited", e.Used)
	} else {
		fmt.Fprintf(&b, ", %d of %d used", e.Used, e.Limit)
	}
	if !e.ResetAt.IsZero() {
		fmt.Fprintf(&b, ", resets %s", e.ResetAt.Local().Format(time.DateOnly))
	}
	return b.String()
}
