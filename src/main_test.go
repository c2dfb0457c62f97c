package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RailPunctuality/src/config"
	"RailPunctuality/src/storage"
)

const albiCSV = "Date;Départ;Arrivée;Nombre de trains programmés;Nombre de trains ayant circulé;" +
	"Nombre de trains annulés;Nombre de trains en retard à l'arrivée;Taux de régularité\n" +
	"2022-12;Albi;Paris-Austerlitz;100;95;5;10;89,5\n" +
	"2023-01;Albi;Paris-Austerlitz;90;90;0;9;90\n"

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DataDir:   filepath.Join(dir, "data"),
		CacheDir:  filepath.Join(dir, "cache"),
		OutputDir: filepath.Join(dir, "output"),
		Precision: 1,
		Service:   "intercites",
	}
	require.NoError(t, os.MkdirAll(cfg.DataDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, "albi_intercites.csv"), []byte(albiCSV), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, "gares.csv"),
		[]byte("Ville;Voyageurs\nAlbi;120\nAlbi;80\n"), 0644))
	cfg.SetSource("albi_intercites", config.Source{Kind: config.SourceFile})
	cfg.SetSource("gares", config.Source{Kind: config.SourceFile})

	logger, err := storage.NewLogger(filepath.Join(dir, "app.log"), "debug")
	require.NoError(t, err)
	logger.SetConsole(io.Discard)
	t.Cleanup(func() { logger.Close() })

	var out bytes.Buffer
	return &App{
		ctx:    context.Background(),
		cfg:    cfg,
		dcfg:   config.DefaultDataConfig(),
		logger: logger,
		out:    &out,
	}, &out
}

func TestCLIParse(t *testing.T) {
	var cli CLI
	parser, err := kong.New(&cli)
	require.NoError(t, err)

	kctx, err := parser.Parse([]string{"run", "--group", "station-year", "--json", "--dataset", "albi,tarbes"})
	require.NoError(t, err)
	assert.Equal(t, "run", kctx.Command())
	assert.Equal(t, "station-year", cli.Run.Group)
	assert.True(t, cli.Run.JSON)
	assert.Equal(t, []string{"albi", "tarbes"}, cli.Run.Dataset)
	assert.Equal(t, "config.json", cli.ConfigFile)

	_, err = parser.Parse([]string{"run", "--group", "weekly"})
	assert.Error(t, err)

	kctx, err = parser.Parse([]string{"years", "--station", "Albi"})
	require.NoError(t, err)
	assert.Equal(t, "years", kctx.Command())
	assert.Equal(t, "Albi", cli.Years.Station)
}

func TestRunCommand(t *testing.T) {
	app, out := newTestApp(t)
	cmd := &RunCmd{BatchFlags: BatchFlags{Group: "station-year", JSON: true, CSV: true}}
	require.NoError(t, cmd.Run(app))

	assert.Contains(t, out.String(), "分组数: 2")
	assert.Contains(t, out.String(), "albi_intercites: paris_arrival")
	assert.FileExists(t, filepath.Join(app.cfg.OutputDir, "station_year.json"))
	assert.FileExists(t, filepath.Join(app.cfg.OutputDir, "station_year.csv"))
	assert.NoFileExists(t, filepath.Join(app.cfg.OutputDir, "station_year.xlsx"))
}

func TestRunCommandMetricsFile(t *testing.T) {
	app, _ := newTestApp(t)
	app.cfg.MetricsFile = filepath.Join(t.TempDir(), "metrics.prom")

	require.NoError(t, (&RunCmd{BatchFlags: BatchFlags{Group: "route"}}).Run(app))

	data, err := os.ReadFile(app.cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "railpunctuality_rows_loaded_total")
}

func TestYearsCommand(t *testing.T) {
	app, out := newTestApp(t)
	require.NoError(t, (&YearsCmd{Station: "Albi"}).Run(app))
	assert.Equal(t, "出发站: Paris-Austerlitz\n2023\n2022\n", out.String())

	out.Reset()
	assert.Error(t, (&YearsCmd{Station: "Rodez"}).Run(app))
}

func TestStationsCommand(t *testing.T) {
	app, out := newTestApp(t)
	require.NoError(t, (&StationsCmd{Dataset: "gares"}).Run(app))
	assert.Equal(t, "ALBI\tVoyageurs=100.0\n", out.String())
}
