package outcome

import (
	"strconv"
	"strings"
)

// RewardGrant is the resolved reward payload for a single winning entry.
type RewardGrant struct {
	Points            int64  `json:"points"`
	BadgePoints       int64  `json:"badge_points"`
	CouponCode        string `json:"coupon_code"`
	CouponDescription string `json:"coupon_description"`
}

// ParseRewardSpec parses a compact reward expression such as
// "points:1000, badgePoints:50, coupon:CODE123". Unknown keys are ignored and
// a malformed integer only skips that key; a typo in a reward string must not
// abort outcome computation.
func ParseRewardSpec(spec string) RewardGrant {
	var grant RewardGrant

	for _, part := range strings.Split(spec, ",") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		switch key {
		case "points":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				grant.Points = n
			}
		case "badgePoints":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				grant.BadgePoints = n
			}
		case "coupon":
			grant.CouponCode = value
			grant.CouponDescription = value
		}
	}

	return grant
}
