package outcome

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRewardSpecFull(t *testing.T) {
	grant := ParseRewardSpec("points:1000, badgePoints:50, coupon:ABC")

	require.Equal(t, int64(1000), grant.Points)
	require.Equal(t, int64(50), grant.BadgePoints)
	require.Equal(t, "ABC", grant.CouponCode)
	require.Equal(t, "ABC", grant.CouponDescription)
}

func TestParseRewardSpecMalformedInteger(t *testing.T) {
	grant := ParseRewardSpec("points:abc")

	require.Equal(t, RewardGrant{}, grant)
}

func TestParseRewardSpecEmpty(t *testing.T) {
	require.Equal(t, RewardGrant{}, ParseRewardSpec(""))
}

func TestParseRewardSpecUnknownKeysIgnored(t *testing.T) {
	grant := ParseRewardSpec("gold:500, points:10, shiny:yes")

	require.Equal(t, int64(10), grant.Points)
	require.Equal(t, int64(0), grant.BadgePoints)
	require.Empty(t, grant.CouponCode)
}

func TestParseRewardSpecSparseWhitespace(t *testing.T) {
	grant := ParseRewardSpec("  badgePoints :  25 ,coupon: WELCOME10 ")

	require.Equal(t, int64(25), grant.BadgePoints)
	require.Equal(t, "WELCOME10", grant.CouponCode)
}

func TestParseRewardSpecPartialFailureKeepsRest(t *testing.T) {
	grant := ParseRewardSpec("points:oops, badgePoints:5")

	require.Equal(t, int64(0), grant.Points)
	require.Equal(t, int64(5), grant.BadgePoints)
}
