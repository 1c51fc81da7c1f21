package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/photomatch/photomatch"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *photomatch.Config
	Store      *photomatch.Store
	Scenes     *photomatch.SceneCache
	Solves     *photomatch.SolveTracker
	MQTTClient *photomatch.MQTTClient
	Publisher  *photomatch.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile   string
	DataFile     string
	SceneID      int
	PhotoID      int
	RenderFormat string
	OutputFile   string
	GeoJSONFile  string
	PlotFile     string
	FetchURL     string
	PushURL      string
	HttpPort     int
	MqttMode     bool
	HttpMode     bool

	out io.Writer
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Scenes: photomatch.NewSceneCache(),
		Solves: photomatch.NewSolveTracker(0),
		out:    os.Stdout,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.DataFile = opts.DataFile
	a.SceneID = opts.SceneID
	a.PhotoID = opts.PhotoID
	a.RenderFormat = opts.RenderFormat
	a.OutputFile = opts.OutputFile
	a.GeoJSONFile = opts.GeoJSONFile
	a.PlotFile = opts.PlotFile
	a.FetchURL = opts.FetchURL
	a.PushURL = opts.PushURL
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// load reads the configuration and opens the data store once
func (a *App) load() error {
	if a.Config == nil {
		config, err := photomatch.LoadConfig(a.ConfigFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		a.Config = config
		log.Printf("Loaded config from %s", a.ConfigFile)
	}
	if a.DataFile != "" {
		a.Config.DataFile = a.DataFile
	}
	if a.HttpPort != 0 {
		a.Config.HTTP.Port = a.HttpPort
	}
	if a.Store == nil {
		store, err := photomatch.OpenStore(a.Config.DataFile)
		if err != nil {
			return fmt.Errorf("opening data store: %w", err)
		}
		a.Store = store
		log.Printf("Loaded data from %s (version %d)", a.Config.DataFile, store.Version())
	}
	return nil
}

// sceneMeshes returns the definition and the assembled shapes of a scene
func (a *App) sceneMeshes(sceneID int) (*photomatch.SceneDefinition, []photomatch.ShapeMesh, error) {
	def, err := a.Config.Scene(sceneID)
	if err != nil {
		return nil, nil, err
	}
	meshes, err := a.Scenes.Meshes(*def)
	if err != nil {
		return nil, nil, err
	}
	return def, meshes, nil
}

func (a *App) sceneEdges(sceneID int) ([]photomatch.MatchEdge, error) {
	def, err := a.Config.Scene(sceneID)
	if err != nil {
		return nil, err
	}
	return a.Scenes.Edges(*def)
}

// photoCamera returns the stored camera or the default one
func photoCamera(p photomatch.Photo) photomatch.CameraTransform {
	if c, ok := p.Camera(); ok {
		return c
	}
	return photomatch.DefaultCamera()
}

// SolvePhoto solves the camera of one photo. An accepted camera is stored
// and published; a rejected one leaves the stored camera alone.
func (a *App) SolvePhoto(ctx context.Context, req photomatch.SolveRequest) (photomatch.SolveResult, error) {
	photo, err := a.Store.Photo(req.SceneID, req.PhotoID)
	if err != nil {
		return photomatch.SolveResult{}, err
	}
	edges, err := a.sceneEdges(req.SceneID)
	if err != nil {
		return photomatch.SolveResult{}, err
	}

	initial := photoCamera(photo)
	if req.Initial != nil {
		initial = *req.Initial
	}

	res, err := photomatch.SolveEdges(ctx, initial, photo.Aspect(), edges, photo.Lines, a.Config.Solver)
	if err != nil {
		return res, err
	}

	if res.Accepted {
		if err := a.Store.SetCamera(req.SceneID, req.PhotoID, res.Camera); err != nil {
			return res, fmt.Errorf("storing camera: %w", err)
		}
	}
	if a.Publisher != nil {
		if err := a.Publisher.PublishCamera(req.SceneID, req.PhotoID, res); err != nil {
			log.Printf("Warning: camera not published: %v", err)
		}
	}
	return res, nil
}

// StartSolve runs SolvePhoto in the background and returns the job id
func (a *App) StartSolve(ctx context.Context, req photomatch.SolveRequest) string {
	return a.Solves.Start(ctx, req.SceneID, req.PhotoID, func(ctx context.Context) (photomatch.SolveResult, error) {
		return a.SolvePhoto(ctx, req)
	})
}

// RunListEdges prints every match edge of a scene
func (a *App) RunListEdges() error {
	if err := a.load(); err != nil {
		return err
	}
	def, meshes, err := a.sceneMeshes(a.SceneID)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(a.out, "Scene %d %s: %d shapes\n", def.ID, def.Name, len(meshes))
	for _, m := range meshes {
		_, _ = fmt.Fprintf(a.out, "\nShape %d %s (%s), %d edges\n", m.ShapeID, m.Name, m.Type, len(m.Edges))
		for _, e := range m.MatchEdges() {
			_, _ = fmt.Fprintf(a.out, "  %-8s (%8.2f, %8.2f, %8.2f) -> (%8.2f, %8.2f, %8.2f)\n",
				e.Ref(), e.V0.X, e.V0.Y, e.V0.Z, e.V1.X, e.V1.Y, e.V1.Z)
		}
	}
	return nil
}

// RunSolve solves one photo and prints the outcome
func (a *App) RunSolve() error {
	if err := a.load(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := a.SolvePhoto(ctx, photomatch.SolveRequest{SceneID: a.SceneID, PhotoID: a.PhotoID})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(a.out, "Solve %s\n", res.ID)
	_, _ = fmt.Fprintf(a.out, "  links:      %d\n", res.Links)
	_, _ = fmt.Fprintf(a.out, "  iterations: %d (%d runs, %d evaluations)\n", res.Iterations, res.Runs, res.Evaluations)
	_, _ = fmt.Fprintf(a.out, "  error:      %.6g\n", res.Error)
	_, _ = fmt.Fprintf(a.out, "  accepted:   %v\n", res.Accepted)
	_, _ = fmt.Fprintf(a.out, "  camera:     fov=%.3f position=(%.3f, %.3f, %.3f) rotation=(%.4f, %.4f, %.4f)\n",
		res.Camera.FOV,
		res.Camera.Position.X, res.Camera.Position.Y, res.Camera.Position.Z,
		res.Camera.Rotation.X, res.Camera.Rotation.Y, res.Camera.Rotation.Z)
	for _, r := range res.Residuals {
		_, _ = fmt.Fprintf(a.out, "    line %d -> %s: %.3g\n", r.LineID, r.Edge, r.Error)
	}

	if a.PlotFile != "" {
		var buf bytes.Buffer
		if err := photomatch.PlotTrace(&buf, res.Trace, "png"); err != nil {
			return err
		}
		if err := os.WriteFile(a.PlotFile, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("writing plot file: %w", err)
		}
		_, _ = fmt.Fprintf(a.out, "Convergence plot written to %s\n", a.PlotFile)
	}
	return nil
}

// RunRender renders the overlay of one photo to OutputFile
func (a *App) RunRender() error {
	if err := a.load(); err != nil {
		return err
	}
	photo, err := a.Store.Photo(a.SceneID, a.PhotoID)
	if err != nil {
		return err
	}
	_, meshes, err := a.sceneMeshes(a.SceneID)
	if err != nil {
		return err
	}
	camera := photoCamera(photo)

	// Output is written only after rendering succeeds.
	switch format := strings.ToLower(a.RenderFormat); format {
	case "svg", "png":
		r, err := photomatch.NewOverlayRenderer(meshes, photo.Lines, camera, photo.Aspect())
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if format == "png" {
			err = r.RenderToPNG(&buf)
		} else {
			err = r.RenderToSVG(&buf)
		}
		if err != nil {
			return fmt.Errorf("rendering overlay: %w", err)
		}
		if err := os.WriteFile(a.OutputFile, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
	case "raster":
		if err := a.renderRaster(photo, camera); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown render format %q (want svg, png or raster)", a.RenderFormat)
	}

	_, _ = fmt.Fprintf(a.out, "Overlay written to %s\n", a.OutputFile)
	return nil
}

// renderRaster draws the overlay on top of the photo when the photo file
// is available in dataDir and saves it to OutputFile
func (a *App) renderRaster(photo photomatch.Photo, camera photomatch.CameraTransform) error {
	edges, err := a.sceneEdges(a.SceneID)
	if err != nil {
		return err
	}
	width, height := photo.Width, photo.Height
	if width <= 0 || height <= 0 {
		width, height = 1024, 1024
	}
	r := photomatch.NewRasterOverlay(edges, photo.Lines, camera, width, height)
	r.ShowLabels = true
	if photo.Filename != "" && a.Config.DataDir != "" {
		bg, err := photomatch.LoadImage(filepath.Join(a.Config.DataDir, photo.Filename))
		if err != nil {
			log.Printf("Warning: rendering without photo: %v", err)
		} else {
			r.Background = bg
		}
	}
	if err := r.SavePNG(a.OutputFile); err != nil {
		return fmt.Errorf("writing raster overlay: %w", err)
	}
	return nil
}

// RunExportGeoJSON writes the projected edges and lines of one photo
func (a *App) RunExportGeoJSON() error {
	if err := a.load(); err != nil {
		return err
	}
	photo, err := a.Store.Photo(a.SceneID, a.PhotoID)
	if err != nil {
		return err
	}
	edges, err := a.sceneEdges(a.SceneID)
	if err != nil {
		return err
	}

	projected := photomatch.ProjectEdges(photoCamera(photo), photo.Aspect(), edges)
	fc := photomatch.ExportGeoJSON(projected, photo.Lines)
	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling GeoJSON: %w", err)
	}
	if err := os.WriteFile(a.GeoJSONFile, data, 0644); err != nil {
		return fmt.Errorf("writing GeoJSON: %w", err)
	}
	_, _ = fmt.Fprintf(a.out, "GeoJSON written to %s (%d features)\n", a.GeoJSONFile, len(fc.Features))
	return nil
}

// RunFetch replaces the local data with a remote document
func (a *App) RunFetch() error {
	if err := a.load(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := photomatch.FetchData(ctx, a.FetchURL)
	if err != nil {
		return err
	}
	if err := a.Store.Replace(d); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Fetched version %d from %s\n", d.Metadata.Version, a.FetchURL)
	return nil
}

// RunPush posts the local data to another photomatch server
func (a *App) RunPush() error {
	if err := a.load(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := a.Store.Snapshot()
	if err != nil {
		return err
	}
	if err := photomatch.PushData(ctx, a.PushURL, d); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "Pushed version %d to %s\n", d.Metadata.Version, a.PushURL)
	return nil
}

// handleSolveCommand is the MQTT solve command handler
func (a *App) handleSolveCommand(ctx context.Context) photomatch.SolveCommandHandler {
	return func(req photomatch.SolveRequest) {
		id := a.StartSolve(ctx, req)
		log.Printf("Started solve job %s for scene %d photo %d", id, req.SceneID, req.PhotoID)
	}
}

// RunService runs the HTTP server and the MQTT solve command listener
// until interrupted
func (a *App) RunService() error {
	if err := a.load(); err != nil {
		return err
	}
	if !a.MqttMode && !a.HttpMode {
		a.HttpMode = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.MqttMode {
		client, err := photomatch.InitMQTT(ctx, a.Config, a.handleSolveCommand(ctx))
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if client != nil {
			a.MQTTClient = client
			a.Publisher = photomatch.NewPublisher(client.GetClient(), client.Prefix())
		}
	}

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.Config.HTTP.Port),
			Handler:           newHTTPServer(a),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
				stop()
			}
		}()
	}

	_, _ = fmt.Fprintln(a.out, "\nService Running")
	_, _ = fmt.Fprintln(a.out, "===============")
	if a.MQTTClient != nil {
		_, _ = fmt.Fprintln(a.out, "\nMQTT:")
		_, _ = fmt.Fprintf(a.out, "  Solve commands: %s\n", a.MQTTClient.SolveTopic())
		_, _ = fmt.Fprintf(a.out, "  Cameras:        %s/scene/{scene}/photo/{photo}/camera\n", a.MQTTClient.Prefix())
		_, _ = fmt.Fprintf(a.out, "  Solve feed:     %s/solves\n", a.MQTTClient.Prefix())
	}
	if server != nil {
		_, _ = fmt.Fprintf(a.out, "\nHTTP endpoints (port %d):\n", a.Config.HTTP.Port)
		_, _ = fmt.Fprintln(a.out, "  GET  /health")
		_, _ = fmt.Fprintln(a.out, "  GET  /data, POST /data")
		_, _ = fmt.Fprintln(a.out, "  GET  /file/{name}")
		_, _ = fmt.Fprintln(a.out, "  GET  /scenes/{scene}/edges")
		_, _ = fmt.Fprintln(a.out, "  GET  /scenes/{scene}/photos/{photo}/projected.geojson")
		_, _ = fmt.Fprintln(a.out, "  GET  /scenes/{scene}/photos/{photo}/overlay.svg|overlay.png")
		_, _ = fmt.Fprintln(a.out, "  POST /scenes/{scene}/photos/{photo}/pick")
		_, _ = fmt.Fprintln(a.out, "  POST /scenes/{scene}/photos/{photo}/solve")
		_, _ = fmt.Fprintln(a.out, "  POST /scenes/{scene}/photos/{photo}/lines, DELETE .../lines/{line}")
		_, _ = fmt.Fprintln(a.out, "  PUT  .../lines/{line}/endpoints/{index}, PUT|DELETE .../lines/{line}/link")
		_, _ = fmt.Fprintln(a.out, "  GET  /solves, GET|DELETE /solves/{id}")
	}
	_, _ = fmt.Fprintln(a.out, "\nPress Ctrl+C to stop")

	<-ctx.Done()

	_, _ = fmt.Fprintln(a.out, "\nShutting down service...")
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	_, _ = fmt.Fprintln(a.out, "Service stopped")
	return nil
}
