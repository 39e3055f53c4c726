package installment

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchedule(t *testing.T) {
	t.Run("even split without fees", func(t *testing.T) {
		schedule, err := BuildSchedule(300, 3, decimal.Zero)

		require.NoError(t, err)
		require.Len(t, schedule, 3)
		for i, p := range schedule {
			assert.Equal(t, i, p.Sequence)
			assert.Equal(t, int64(100), p.Base)
			assert.Equal(t, int64(0), p.Fee)
		}
		assert.Equal(t, int64(300), schedule.Total())
	})

	t.Run("last period absorbs remainder", func(t *testing.T) {
		schedule, err := BuildSchedule(1000, 3, decimal.NewFromInt(1))

		require.NoError(t, err)
		assert.Equal(t, []int64{333, 333, 334}, []int64{schedule[0].Base, schedule[1].Base, schedule[2].Base})
		assert.Equal(t, []int64{3, 3, 4}, []int64{schedule[0].Fee, schedule[1].Fee, schedule[2].Fee})
		assert.Equal(t, int64(1000), schedule.Principal())
		assert.Equal(t, int64(10), schedule.Fees())
	})

	t.Run("fee rounds half away from zero", func(t *testing.T) {
		// 1234 * 1.5% = 18.51
		schedule, err := BuildSchedule(1234, 1, decimal.RequireFromString("1.5"))
		require.NoError(t, err)
		assert.Equal(t, int64(19), schedule.Fees())

		// 1230 * 0.2% = 2.46
		schedule, err = BuildSchedule(1230, 2, decimal.RequireFromString("0.2"))
		require.NoError(t, err)
		assert.Equal(t, int64(2), schedule.Fees())

		// 250 * 1% = 2.5
		schedule, err = BuildSchedule(250, 1, decimal.NewFromInt(1))
		require.NoError(t, err)
		assert.Equal(t, int64(3), schedule.Fees())
	})

	t.Run("sums are exact and non-negative", func(t *testing.T) {
		rates := []decimal.Decimal{decimal.Zero, decimal.RequireFromString("0.8"), decimal.NewFromInt(1), decimal.RequireFromString("1.5")}
		for _, total := range []int64{1, 7, 99, 100, 1001, 30000, 123457} {
			for _, count := range []int{1, 2, 3, 6, 12} {
				for _, rate := range rates {
					schedule, err := BuildSchedule(total, count, rate)
					require.NoError(t, err)
					require.Len(t, schedule, count)

					fee := decimal.NewFromInt(total).Mul(rate).Div(decimal.NewFromInt(100)).Round(0).IntPart()
					assert.Equal(t, total, schedule.Principal())
					assert.Equal(t, total+fee, schedule.Total())
					for _, p := range schedule {
						assert.GreaterOrEqual(t, p.Base, int64(0))
						assert.GreaterOrEqual(t, p.Fee, int64(0))
					}
				}
			}
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := BuildSchedule(100, 0, decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidSchedule)

		_, err = BuildSchedule(0, 3, decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidSchedule)

		_, err = BuildSchedule(-100, 3, decimal.Zero)
		assert.ErrorIs(t, err, ErrInvalidSchedule)

		_, err = BuildSchedule(100, 3, decimal.NewFromInt(-1))
		assert.ErrorIs(t, err, ErrInvalidSchedule)
	})
}

func TestDueDate(t *testing.T) {
	start := time.Date(2024, 1, 30, 15, 4, 5, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), DueDate(start, 0))
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), DueDate(start, 1))
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), DueDate(start, 2))
}
