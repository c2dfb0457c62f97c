package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RailPunctuality/src/config"
	"RailPunctuality/src/datasource"
	apperrors "RailPunctuality/src/errors"
	"RailPunctuality/src/processor"
)

const header = "Date;Départ;Arrivée;Nombre de trains programmés;Nombre de trains ayant circulé;" +
	"Nombre de trains annulés;Nombre de trains en retard à l'arrivée;Taux de régularité\n"

func setup(t *testing.T, files map[string]string) (*config.Config, *Pipeline) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{DataDir: dir, CacheDir: filepath.Join(dir, "cache"), Precision: 1}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(content), 0644))
		cfg.SetSource(name, config.Source{Kind: config.SourceFile})
	}
	return cfg, New(cfg, config.DefaultDataConfig(), datasource.NewRegistry(cfg), nil)
}

func TestRunRoute(t *testing.T) {
	_, p := setup(t, map[string]string{
		"tarbes_intercites": header +
			"2023-01;Tarbes;Paris-Austerlitz;100;95;5;10;89,5\n" +
			"2023-02;Tarbes;Paris-Austerlitz;90;90;0;9;90\n",
		"nimes_intercites": header +
			"2023-01;Clermont-Ferrand;Nîmes;40;40;0;4;90\n" +
			"2023-01;Nîmes;Nîmes;10;10;0;1;90\n" +
			"2023-02;Clermont-Ferrand;Rodez;10;10;0;1;150\n" +
			"2023-03;Clermont-Ferrand;Nîmes;40;40;0;4;90;extra\n",
	})

	res, err := p.Run(context.Background(), Options{Service: "intercites", Precision: 1})
	require.NoError(t, err)

	require.Len(t, res.Aggregates, 2)
	nimes, tarbes := res.Aggregates[0], res.Aggregates[1]
	assert.Equal(t, []string{"Clermont-Ferrand", "Nîmes"}, nimes.Values)
	assert.Equal(t, []string{"Paris-Austerlitz", "Tarbes"}, tarbes.Values)
	assert.Equal(t, 190.0, tarbes.Programmed)
	assert.Equal(t, 185.0, tarbes.Operated)
	assert.InDelta(t, 89.75, tarbes.Punctuality, 1e-9)

	r := res.Report
	assert.Equal(t, []string{"nimes_intercites", "tarbes_intercites"}, r.Loaded)
	assert.Equal(t, 5, r.RowsLoaded)
	assert.Equal(t, map[string][]string{"tarbes_intercites": {"tarbes_departure"}}, r.Corrections)
	assert.Equal(t, 1, r.MalformedLines())
	assert.Contains(t, r.Warnings, apperrors.ValidationWarning{Reason: apperrors.ReasonSelfLoop, Count: 1})
	assert.Contains(t, r.Warnings, apperrors.ValidationWarning{Reason: apperrors.ReasonRateOutOfRange, Count: 1})
	assert.Equal(t, 2, r.Groups)

	rows := res.Rows()
	assert.Equal(t, 89.8, rows[1]["PunctualityRate"])
	assert.Equal(t, "Tarbes", rows[1]["Arrival"])
	assert.Same(t, res, p.Latest())
}

func TestRunHeaderOnlyDataset(t *testing.T) {
	_, p := setup(t, map[string]string{
		"rodez_intercites": header,
		"nimes_intercites": header + "2023-01;Clermont-Ferrand;Nîmes;40;40;0;4;90\n",
	})

	res, err := p.Run(context.Background(), Options{Service: "intercites", Precision: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"nimes_intercites", "rodez_intercites"}, res.Report.Loaded)
	assert.Empty(t, res.Report.Skipped)
	assert.Equal(t, 1, res.Report.RowsLoaded)
	require.Len(t, res.Aggregates, 1)
	assert.Equal(t, []string{"Clermont-Ferrand", "Nîmes"}, res.Aggregates[0].Values)
}

func TestRunStationYear(t *testing.T) {
	_, p := setup(t, map[string]string{
		"albi_intercites": header +
			"2022-12;Albi;Paris-Austerlitz;10;10;0;1;90\n" +
			"2023-01;Albi;Paris-Austerlitz;10;10;0;3;70\n" +
			"2023-02;Albi;Paris-Austerlitz;10;10;0;7;30\n",
	})

	res, err := p.Run(context.Background(), Options{
		Group:  processor.GroupStationYear,
		SortBy: processor.GroupStationYear,
	})
	require.NoError(t, err)
	require.Len(t, res.Aggregates, 2)

	assert.Equal(t, []string{"Albi", "2022"}, res.Aggregates[0].Values)
	assert.Equal(t, []string{"Albi", "2023"}, res.Aggregates[1].Values)
	assert.Equal(t, 50.0, res.Aggregates[1].Punctuality)
	assert.Equal(t, 50.0, res.Aggregates[1].DelayRate())
	assert.Equal(t, []string{"Station", "Year", "Programmed", "Operated", "Cancelled", "Delayed",
		"PunctualityRate", "DelayRate", "CancellationRate", "Rows"}, res.Columns())

	assert.Equal(t, []int{2023, 2022}, processor.AvailableYears(res.Records, "Albi", "Paris-Austerlitz"))
}

func TestRunCollapsesToulouse(t *testing.T) {
	_, p := setup(t, map[string]string{
		"toulouse_intercites": "Date;Départ;Arrivée;Nombre de trains programmés;Nombre de trains ayant circulé;" +
			"Nombre de trains annulés;Nombre de trains en retard à l'arrivée\n" +
			"2023-01;Toulouse-Matabiau;Paris;10;10;0;1\n" +
			"2023-01;Toulouse-Matabiau;Bordeaux;20;20;0;2\n",
	})

	res, err := p.Run(context.Background(), Options{Group: processor.GroupStation, SkipOnError: true})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 30.0, res.Records[0].Programmed)
	assert.Equal(t, "Paris", res.Records[0].Arrival)

	assert.Empty(t, res.Aggregates)
	assert.Contains(t, res.Report.Warnings, apperrors.ValidationWarning{Reason: apperrors.ReasonRateOutOfRange, Count: 1})
}

func TestRunSkipOnError(t *testing.T) {
	cfg, p := setup(t, map[string]string{
		"albi_intercites": header + "2023-01;Paris;Albi;10;10;0;1;90\n",
	})
	cfg.SetSource("missing_intercites", config.Source{Kind: config.SourceFile})

	_, err := p.Run(context.Background(), Options{})
	var de *apperrors.DatasetError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "missing_intercites", de.Dataset)

	res, err := p.Run(context.Background(), Options{SkipOnError: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"albi_intercites"}, res.Report.Loaded)
	require.Len(t, res.Report.Skipped, 1)
	assert.Equal(t, "missing_intercites", res.Report.Skipped[0].Name)
}

func TestRunSchemaErrorIsFatal(t *testing.T) {
	_, p := setup(t, map[string]string{
		"albi_intercites":    header + "2023-01;Paris;Albi;10;10;0;1;90\n",
		"beziers_intercites": "Départ;Arrivée\nBeziers;Paris\n",
	})

	_, err := p.Run(context.Background(), Options{SkipOnError: true})
	var se *apperrors.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Missing, "Date")
	assert.Nil(t, p.Latest())
}

func TestRunNoDatasets(t *testing.T) {
	_, p := setup(t, nil)
	_, err := p.Run(context.Background(), Options{Service: "ter"})
	assert.Error(t, err)
}

func TestRunRejectsOverlap(t *testing.T) {
	_, p := setup(t, map[string]string{"albi_intercites": header})
	p.running.Lock()
	defer p.running.Unlock()

	_, err := p.Run(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrRunning)
}

func TestStationSummary(t *testing.T) {
	_, p := setup(t, map[string]string{
		"frequentation": "Nom de la gare;Code UIC;Total Voyageurs 2023;Voyageurs 2022\n" +
			"Toulouse;87611004;1000;800\n" +
			"Albi;87615005;200;100\n",
	})

	means, err := p.StationSummary(context.Background(), "frequentation")
	require.NoError(t, err)
	require.Len(t, means, 2)
	assert.Equal(t, "ALBI", means[0].Station)
	assert.Equal(t, map[string]float64{"Voyageurs 2022": 100}, means[0].Means)
}

func TestReportText(t *testing.T) {
	r := Report{
		Loaded:      []string{"albi"},
		RowsLoaded:  3,
		Corrections: map[string][]string{"albi": {"paris_arrival"}},
		Warnings:    []apperrors.ValidationWarning{{Reason: apperrors.ReasonSelfLoop, Count: 2}},
		Groups:      1,
		Columns:     []processor.ColumnResult{{Column: "Delayed", Failures: 4}},
	}
	text := r.Text(1)
	assert.Contains(t, text, "albi: paris_arrival")
	assert.Contains(t, text, "丢弃 self_loop: 2")
	assert.Contains(t, text, "无法转换的数值: 4")
	assert.Equal(t, 4, r.CoercionFailures())
	assert.Equal(t, 0, r.MalformedLines())
}
