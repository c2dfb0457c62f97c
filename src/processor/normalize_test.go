package processor

import (
	"math"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RailPunctuality/src/config"
	"RailPunctuality/src/datasource"
	"RailPunctuality/src/utils"
)

func frameOf(rows [][]string) dataframe.DataFrame {
	return dataframe.LoadRecords(rows,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
	)
}

func datasetOf(name string, rows [][]string) *datasource.Dataset {
	return &datasource.Dataset{Name: name, Frame: frameOf(rows)}
}

func TestRenameColumns(t *testing.T) {
	n := NewNormalizer(config.DefaultDataConfig(), nil)
	df := n.RenameColumns(frameOf([][]string{
		{" Départ ", "ARRIVEE", "Taux de régularité", "Mois", "Commentaires"},
		{"Tarbes", "Paris-Austerlitz", "90", "2023-01", "ok"},
	}))

	assert.Equal(t,
		[]string{config.ColDeparture, config.ColArrival, config.ColPunctuality, config.ColDate, config.ColComment},
		df.Names())
}

func TestRenameColumnsKeepsFirstMatch(t *testing.T) {
	n := NewNormalizer(config.DefaultDataConfig(), nil)
	df := n.RenameColumns(frameOf([][]string{
		{"Départ", "Origine"},
		{"Albi", "Toulouse"},
	}))

	assert.Equal(t, []string{config.ColDeparture, "Origine"}, df.Names())
	assert.Equal(t, []string{"Albi"}, df.Col(config.ColDeparture).Records())
}

func TestNormalizeCoercesColumns(t *testing.T) {
	n := NewNormalizer(config.DefaultDataConfig(), nil)
	out := n.Normalize(datasetOf("albi_intercites", [][]string{
		{"Date", "Départ", "Arrivée", "Nombre de trains en retard à l'arrivée", "Taux de régularité", "Retard moyen", "Observations"},
		{"2023-01", "Albi", "Paris", "abc", "89,5", "3,2", "neige"},
		{"2023-02", "Albi", "Paris", "12", "1 000", "", "RAS"},
	}))

	assert.Equal(t, "albi_intercites", out.Name)
	assert.Equal(t, "Albi", out.Profile.Station)

	delayed := out.Frame.Col(config.ColDelayed).Float()
	assert.True(t, math.IsNaN(delayed[0]))
	assert.Equal(t, 12.0, delayed[1])
	assert.Equal(t, []float64{89.5, 1000}, out.Frame.Col(config.ColPunctuality).Float())
	assert.Equal(t, series.Float, out.Frame.Col("Retard moyen").Type())
	assert.Equal(t, series.String, out.Frame.Col("Observations").Type())
	assert.Equal(t, series.String, out.Frame.Col(config.ColDate).Type())

	results := map[string]ColumnResult{}
	for _, r := range out.Columns {
		results[r.Column] = r
	}
	assert.Equal(t, 1, results[config.ColDelayed].Failures)
	assert.Equal(t, TypeNumeric, results["Retard moyen"].Type)
	assert.Equal(t, TypeText, results["Observations"].Type)
	assert.Equal(t, 0, results["Observations"].Failures)
}

func TestNormalizeFillsProfile(t *testing.T) {
	n := NewNormalizer(config.DefaultDataConfig(), nil)

	out := n.Normalize(datasetOf("beziers_intercites", [][]string{
		{"Date", "Arrivée"},
		{"2023-01", "Beziers"},
	}))
	assert.Equal(t, []string{"Clermont-Ferrand"}, out.Frame.Col(config.ColDeparture).Records())
	assert.Equal(t, []string{"Beziers"}, out.Frame.Col(config.ColStation).Records())

	out = n.Normalize(datasetOf("unknown", [][]string{
		{"Date", "Arrivée"},
		{"2023-01", "Rodez"},
	}))
	assert.Equal(t, []string{"Inconnu"}, out.Frame.Col(config.ColDeparture).Records())
	assert.False(t, utils.HasColumn(out.Frame, config.ColStation))
}

func TestNormalizeDoesNotModifyInput(t *testing.T) {
	n := NewNormalizer(config.DefaultDataConfig(), nil)
	ds := datasetOf("tarbes_intercites", [][]string{
		{"Date", "Départ", "Arrivée"},
		{"2023-01", "Tarbes", "Paris"},
	})
	n.Normalize(ds)
	assert.Equal(t, []string{"Date", "Départ", "Arrivée"}, ds.Frame.Names())
}

func TestRecords(t *testing.T) {
	n := NewNormalizer(config.DefaultDataConfig(), nil)
	out := n.Normalize(datasetOf("nimes_intercites", [][]string{
		{"Date", "Départ", "Arrivée", "Nombre de trains programmés"},
		{"2023-03", "Clermont-Ferrand", "Nîmes", "40"},
		{"bad", "", "Nîmes", ""},
	}))

	records := Records(out.Frame)
	require.Len(t, records, 2)
	assert.Equal(t, 2023, records[0].Year)
	assert.Equal(t, 3, records[0].Month)
	assert.Equal(t, 40.0, records[0].Programmed)
	assert.Equal(t, "Nîmes", records[0].Station)
	assert.True(t, math.IsNaN(records[0].Delayed))
	assert.True(t, records[0].Valid())

	assert.Equal(t, 0, records[1].Year)
	assert.False(t, records[1].Valid())
}
