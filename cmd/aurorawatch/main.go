package main

import (
	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
)

// Globals are shared by every command.
type Globals struct {
	EnvFile kongdotenv.ENVFileConfig `embed:""`

	Config    string `help:"Path to a YAML scoring config." type:"path" env:"AURORA_CONFIG"`
	DB        string `help:"Path to the SQLite database." default:"data/aurorawatch.db" env:"AURORA_DB"`
	LogLevel  string `help:"Log level." default:"info" enum:"debug,info,warn,error" env:"AURORA_LOG_LEVEL"`
	LogFormat string `help:"Log format." default:"text" enum:"text,json" env:"AURORA_LOG_FORMAT"`
	OpenAIKey string `help:"OpenAI API key for narrative summaries." env:"OPENAI_API_KEY"`
}

type CLI struct {
	Globals

	Serve       ServeCmd       `cmd:"" help:"Run the HTTP API and the refresh scheduler."`
	Score       ScoreCmd       `cmd:"" help:"Score tonight's window for a location."`
	Window      WindowCmd      `cmd:"" help:"Show the evening window for a location."`
	Refresh     RefreshCmd     `cmd:"" help:"Run one refresh cycle and store the results."`
	Geomagnetic GeomagneticCmd `cmd:"" help:"Show the blended geomagnetic index."`
	Spots       SpotsCmd       `cmd:"" help:"Suggest darker viewing spots nearby."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("aurorawatch"),
		kong.Description("Aurora sightability from clouds, darkness and geomagnetic activity."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
