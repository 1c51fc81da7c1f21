package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile   string
	DataFile     string
	SceneID      int
	PhotoID      int
	Solve        bool
	Render       bool
	RenderFormat string
	OutputFile   string
	GeoJSONFile  string
	PlotFile     string
	ListEdges    bool
	FetchURL     string
	PushURL      string
	HttpPort     int
	MqttMode     bool
	HttpMode     bool
}

// Runner is the set of commands main dispatches to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunListEdges() error
	RunSolve() error
	RunRender() error
	RunExportGeoJSON() error
	RunFetch() error
	RunPush() error
	RunService() error
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("photomatch", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.DataFile, "data", "", "Path to data.json (overrides dataFile from config)")
	fs.IntVar(&opts.SceneID, "scene", 0, "Scene id")
	fs.IntVar(&opts.PhotoID, "photo", 0, "Photo id")
	fs.BoolVar(&opts.Solve, "solve", false, "Solve the camera of --scene/--photo and exit")
	fs.BoolVar(&opts.Render, "render", false, "Render the overlay of --scene/--photo and exit")
	fs.StringVar(&opts.RenderFormat, "format", "svg", "Overlay format for --render: svg, png or raster")
	fs.StringVar(&opts.OutputFile, "output", "overlay.svg", "Output file for --render")
	fs.StringVar(&opts.GeoJSONFile, "export-geojson", "", "Write projected edges and lines of --scene/--photo as GeoJSON")
	fs.StringVar(&opts.PlotFile, "plot", "", "With --solve, write the convergence plot (PNG) to this file")
	fs.BoolVar(&opts.ListEdges, "list-edges", false, "Print the match edges of --scene and exit")
	fs.StringVar(&opts.FetchURL, "fetch", "", "Replace the local data with the document at this /data URL and exit")
	fs.StringVar(&opts.PushURL, "push", "", "Post the local data to this /data URL and exit")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (overrides http.port from config)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Enable MQTT solve commands and camera publishing")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable the HTTP server")

	if err := fs.Parse(args); err != nil {
		return err
	}

	app.ApplyOptions(opts)

	switch {
	case opts.FetchURL != "":
		return app.RunFetch()
	case opts.PushURL != "":
		return app.RunPush()
	case opts.ListEdges:
		return app.RunListEdges()
	case opts.Solve:
		return app.RunSolve()
	case opts.Render:
		return app.RunRender()
	case opts.GeoJSONFile != "":
		return app.RunExportGeoJSON()
	}

	_, _ = fmt.Fprintf(out, "photomatch version: %s\n", Version)
	_, _ = fmt.Fprintln(out, "photomatch service starting...")
	return app.RunService()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Error: %v", err)
	}
}
