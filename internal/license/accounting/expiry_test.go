package accounting

import (
	"testing"
	"time"

	"github.com/discedric/netbox-license/internal/license/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeExpiryStatusNoExpiry(t *testing.T) {
	status := New(DefaultPolicy()).ComputeExpiryStatus(domain.License{}, time.Now())
	assert.Nil(t, status)
}

func TestComputeExpiryStatus(t *testing.T) {
	engine := New(DefaultPolicy())
	today := time.Date(2025, time.January, 1, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		purchase *time.Time
		expiry   *time.Time
		want     domain.ExpiryStatus
	}{
		{
			name:     "halfway",
			purchase: date(2024, time.January, 2),
			expiry:   date(2025, time.December, 31),
			want:     domain.ExpiryStatus{Percent: 50, DaysLeft: 364, Status: domain.ExpiryInfo},
		},
		{
			name:     "far out",
			purchase: date(2024, time.December, 1),
			expiry:   date(2027, time.January, 1),
			want:     domain.ExpiryStatus{Percent: 4, DaysLeft: 730, Status: domain.ExpirySuccess},
		},
		{
			name:     "within warning window",
			purchase: date(2024, time.January, 1),
			expiry:   date(2025, time.February, 1),
			want:     domain.ExpiryStatus{Percent: 92, DaysLeft: 31, Status: domain.ExpiryWarning},
		},
		{
			name:     "expires today",
			purchase: date(2024, time.January, 1),
			expiry:   date(2025, time.January, 1),
			want:     domain.ExpiryStatus{Percent: 100, DaysLeft: 0, Status: domain.ExpiryWarning},
		},
		{
			name:     "expired",
			purchase: date(2023, time.January, 1),
			expiry:   date(2024, time.December, 22),
			want:     domain.ExpiryStatus{Percent: 100, DaysLeft: -10, Status: domain.ExpiryDanger, Expired: true},
		},
		{
			name:   "no purchase date running",
			expiry: date(2026, time.June, 1),
			want:   domain.ExpiryStatus{Percent: 10, DaysLeft: 516, Status: domain.ExpirySuccess},
		},
		{
			name:   "no purchase date expired",
			expiry: date(2024, time.December, 31),
			want:   domain.ExpiryStatus{Percent: 100, DaysLeft: -1, Status: domain.ExpiryDanger, Expired: true},
		},
		{
			name:     "purchase in the future",
			purchase: date(2025, time.March, 1),
			expiry:   date(2026, time.March, 1),
			want:     domain.ExpiryStatus{Percent: 0, DaysLeft: 424, Status: domain.ExpirySuccess},
		},
		{
			name:     "same day purchase and expiry ahead",
			purchase: date(2025, time.April, 1),
			expiry:   date(2025, time.April, 1),
			want:     domain.ExpiryStatus{Percent: 10, DaysLeft: 90, Status: domain.ExpiryInfo},
		},
		{
			name:     "never expires placeholder",
			purchase: date(2024, time.January, 1),
			expiry:   date(9999, time.December, 31),
			want:     domain.ExpiryStatus{Percent: 0, DaysLeft: 2912807, Status: domain.ExpirySuccess},
		},
		{
			name:   "never expires placeholder without purchase date",
			expiry: date(9999, time.December, 31),
			want:   domain.ExpiryStatus{Percent: 10, DaysLeft: 2912807, Status: domain.ExpirySuccess},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status := engine.ComputeExpiryStatus(domain.License{PurchaseDate: tc.purchase, ExpiryDate: tc.expiry}, today)
			require.NotNil(t, status)
			assert.Equal(t, tc.want, *status)
		})
	}
}

func TestComputeExpiryStatusHonoursPolicy(t *testing.T) {
	engine := New(Policy{WarningDays: 30, InfoDays: 60, ProgressFloor: 25})
	today := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

	status := engine.ComputeExpiryStatus(domain.License{ExpiryDate: date(2025, time.February, 15)}, today)
	require.NotNil(t, status)
	assert.Equal(t, domain.ExpiryInfo, status.Status)
	assert.Equal(t, 25, status.Percent)
}

func TestPolicyDefaults(t *testing.T) {
	p := New(Policy{WarningDays: 400, InfoDays: 100, ProgressFloor: 150}).Policy()
	assert.Equal(t, 400, p.WarningDays)
	assert.Equal(t, 400, p.InfoDays)
	assert.Equal(t, 10, p.ProgressFloor)
}
