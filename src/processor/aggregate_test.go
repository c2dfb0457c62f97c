package processor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RailPunctuality/src/config"
	apperrors "RailPunctuality/src/errors"
	"RailPunctuality/src/utils"
)

func rec(station, dep, arr, date string, programmed, operated, cancelled, delayed, rate float64) Record {
	r := Record{
		Dataset: "test", Station: station, Departure: dep, Arrival: arr, Date: date,
		Programmed: programmed, Operated: operated, Cancelled: cancelled, Delayed: delayed, Punctuality: rate,
	}
	if y, m, ok := utils.ParseYearMonth(date); ok {
		r.Year, r.Month = y, m
	}
	return r
}

func TestAggregateExcludesSelfLoop(t *testing.T) {
	records := []Record{
		rec("Albi", "Albi", "Albi", "2023-01", 10, 10, 0, 1, 90),
		rec("Albi", "Paris", "Albi", "2023-01", 20, 19, 1, 2, 95),
	}

	aggs, drops := Aggregate(records, GroupRoute, Options{})
	require.Len(t, aggs, 1)
	assert.Equal(t, []string{"Paris", "Albi"}, aggs[0].Values)
	assert.Equal(t, 1, drops[apperrors.ReasonSelfLoop])
}

func TestAggregateExcludesMissingEndpoint(t *testing.T) {
	records := []Record{
		rec("Albi", "", "Albi", "2023-01", 10, 10, 0, 1, 90),
		rec("Albi", "Paris", "nan", "2023-01", 10, 10, 0, 1, 90),
		rec("Albi", "Paris", "Albi", "2023-01", 10, 10, 0, 1, 90),
	}

	aggs, drops := Aggregate(records, GroupRoute, Options{})
	assert.Len(t, aggs, 1)
	assert.Equal(t, 2, drops[apperrors.ReasonMissingEndpoint])
}

func TestAggregateRateFilter(t *testing.T) {
	records := []Record{
		rec("Albi", "Paris", "Albi", "2023-01", 10, 10, 0, 1, 150),
		rec("Nîmes", "Clermont", "Nîmes", "2023-01", 10, 10, 0, 1, 80),
		rec("Rodez", "Paris", "Rodez", "2023-01", 10, 10, 0, 1, math.NaN()),
	}

	aggs, drops := Aggregate(records, GroupRoute, Options{})
	require.Len(t, aggs, 1)
	assert.Equal(t, "Clermont", aggs[0].Value(KeyDeparture))
	assert.Equal(t, 2, drops[apperrors.ReasonRateOutOfRange])

	aggs, _ = Aggregate(records, GroupRoute, Options{SkipRateFilter: true})
	assert.Len(t, aggs, 3)
}

func TestAggregateDropsNegativeRate(t *testing.T) {
	n := NewNormalizer(config.DefaultDataConfig(), nil)
	out := n.Normalize(datasetOf("albi_intercites", [][]string{
		{"Date", "Départ", "Arrivée", "Nombre de trains ayant circulé",
			"Nombre de trains en retard à l'arrivée", "Taux de régularité"},
		{"2023-01", "Paris-Austerlitz", "Albi", "-10", "-3", "-5"},
	}))

	records := Records(out.Frame)
	require.Len(t, records, 1)
	assert.Equal(t, -10.0, records[0].Operated)
	assert.Equal(t, -3.0, records[0].Delayed)
	assert.Equal(t, -5.0, records[0].Punctuality)

	aggs, drops := Aggregate(records, GroupRoute, Options{})
	assert.Empty(t, aggs)
	assert.Equal(t, 1, drops[apperrors.ReasonRateOutOfRange])
}

func TestAggregateMeanWithinGroup(t *testing.T) {
	records := []Record{
		rec("Albi", "Paris", "Albi", "2023-01", 10, 10, 0, 1, 150),
		rec("Albi", "Paris", "Albi", "2023-02", 10, 10, 0, 1, 30),
	}

	aggs, drops := Aggregate(records, GroupRoute, Options{})
	require.Len(t, aggs, 1)
	assert.Equal(t, 90.0, aggs[0].Punctuality)
	assert.Empty(t, drops)
}

func TestAggregateConservation(t *testing.T) {
	records := []Record{
		rec("Albi", "Paris", "Albi", "2022-01", 100, 95, 5, 10, 89),
		rec("Albi", "Paris", "Albi", "2023-01", 90, 90, 0, 9, 90),
		rec("Albi", "Toulouse", "Albi", "2023-02", 50, 48, 2, 4, 92),
		rec("Tarbes", "Paris", "Tarbes", "2023-01", 70, 70, 0, 7, 91),
		rec("Tarbes", "Tarbes", "Tarbes", "2023-01", 999, 999, 999, 999, 50),
	}

	var want [4]float64
	for _, r := range records {
		if r.Valid() {
			want[0] += r.Programmed
			want[1] += r.Operated
			want[2] += r.Cancelled
			want[3] += r.Delayed
		}
	}

	groupings := [][]GroupKey{GroupRoute, GroupStationYear, GroupStationYearDeparture, GroupStation, {KeyDate}}
	for _, keys := range groupings {
		aggs, _ := Aggregate(records, keys, Options{})
		var got [4]float64
		for _, a := range aggs {
			got[0] += a.Programmed
			got[1] += a.Operated
			got[2] += a.Cancelled
			got[3] += a.Delayed
		}
		assert.Equal(t, want, got, "keys %v", keys)
	}
}

func TestAggregateByMonth(t *testing.T) {
	records := []Record{
		rec("Albi", "Paris", "Albi", "2023-05", 100, 100, 0, 30, 70),
		rec("Albi", "Toulouse", "Albi", "2023-05", 50, 50, 0, 5, 90),
		rec("Albi", "Paris", "Albi", "2023-06", 100, 100, 0, 70, 30),
	}

	aggs, _ := Aggregate(records, []GroupKey{KeyStation, KeyYear, KeyMonth}, Options{})
	require.Len(t, aggs, 2)

	assert.Equal(t, "5", aggs[0].Value(KeyMonth))
	assert.Equal(t, 150.0, aggs[0].Operated)
	assert.Equal(t, 35.0, aggs[0].Delayed)
	assert.Equal(t, 80.0, aggs[0].Punctuality)

	assert.Equal(t, "6", aggs[1].Value(KeyMonth))
	assert.Equal(t, 70.0, aggs[1].DelayRate())
}

func TestAggregateMissingKey(t *testing.T) {
	records := []Record{
		rec("Albi", "Paris", "Albi", "janvier", 10, 10, 0, 1, 90),
		rec("Albi", "Paris", "Albi", "2023-01", 10, 10, 0, 1, 90),
	}

	aggs, drops := Aggregate(records, GroupStationYear, Options{})
	require.Len(t, aggs, 1)
	assert.Equal(t, "2023", aggs[0].Value(KeyYear))
	assert.Equal(t, 1, drops[apperrors.ReasonMissingKey])
}

func TestAggregateNullCounts(t *testing.T) {
	records := []Record{
		rec("Albi", "Paris", "Albi", "2023-01", 10, math.NaN(), 0, 1, 90),
		rec("Albi", "Paris", "Albi", "2023-02", 10, 8, math.NaN(), 1, math.NaN()),
	}

	aggs, _ := Aggregate(records, GroupRoute, Options{})
	require.Len(t, aggs, 1)
	assert.Equal(t, 8.0, aggs[0].Operated)
	assert.Equal(t, 0.0, aggs[0].Cancelled)
	assert.Equal(t, 90.0, aggs[0].Punctuality)
	assert.Equal(t, 2, aggs[0].Rows)
}

func TestAggregateSortBy(t *testing.T) {
	records := []Record{
		rec("Tarbes", "Paris", "Tarbes", "2023-01", 10, 10, 0, 1, 90),
		rec("Albi", "Paris", "Albi", "2023-01", 10, 10, 0, 1, 90),
		rec("Albi", "Paris", "Albi", "2022-01", 10, 10, 0, 1, 90),
	}

	aggs, _ := Aggregate(records, GroupStationYear, Options{})
	assert.Equal(t, "Tarbes", aggs[0].Value(KeyStation))

	aggs, _ = Aggregate(records, GroupStationYear, Options{SortBy: GroupStationYear})
	require.Len(t, aggs, 3)
	assert.Equal(t, []string{"Albi", "2022"}, aggs[0].Values)
	assert.Equal(t, []string{"Albi", "2023"}, aggs[1].Values)
	assert.Equal(t, []string{"Tarbes", "2023"}, aggs[2].Values)
}

func TestAggregateRecordRounding(t *testing.T) {
	aggs, _ := Aggregate([]Record{
		rec("Albi", "Paris", "Albi", "2023-01", 3, 3, 1, 1, 66.66),
	}, GroupStationYear, Options{})
	require.Len(t, aggs, 1)

	out := aggs[0].Record(1)
	assert.Equal(t, "Albi", out["Station"])
	assert.Equal(t, 2023, out["Year"])
	assert.Equal(t, 66.7, out["PunctualityRate"])
	assert.Equal(t, 33.3, out["DelayRate"])
	assert.Equal(t, 33.3, out["CancellationRate"])
	assert.Equal(t, 3.0, out["Programmed"])
	assert.InDelta(t, 66.66, aggs[0].Punctuality, 1e-9)
}

func TestCollapseMonthly(t *testing.T) {
	records := []Record{
		rec("Toulouse", "Toulouse", "Paris", "2023-01", 10, 10, 0, 2, 80),
		rec("Toulouse", "Toulouse", "Bordeaux", "2023-01", 20, 18, 2, 3, 90),
		rec("Toulouse", "Toulouse", "Paris", "2023-02", 5, 5, 0, 0, 100),
	}

	out := CollapseMonthly(records)
	require.Len(t, out, 2)
	assert.Equal(t, "Paris", out[0].Arrival)
	assert.Equal(t, 30.0, out[0].Programmed)
	assert.Equal(t, 28.0, out[0].Operated)
	assert.Equal(t, 85.0, out[0].Punctuality)
	assert.Equal(t, "2023-02", out[1].Date)
}
