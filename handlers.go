package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/kwv/photomatch/photomatch"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(a *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		status := struct {
			Status      string    `json:"status"`
			Timestamp   time.Time `json:"timestamp"`
			DataVersion int       `json:"dataVersion"`
			Scenes      int       `json:"scenes"`
			MQTT        bool      `json:"mqtt"`
		}{
			Status:      "ok",
			Timestamp:   time.Now(),
			DataVersion: a.Store.Version(),
			Scenes:      len(a.Config.Scenes),
			MQTT:        a.MQTTClient != nil && a.MQTTClient.IsConnected(),
		}
		writeJSON(w, http.StatusOK, status)
	})

	mux.HandleFunc("GET /data", func(w http.ResponseWriter, r *http.Request) {
		d, err := a.Store.Snapshot()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, d)
	})

	mux.HandleFunc("POST /data", func(w http.ResponseWriter, r *http.Request) {
		var d photomatch.Data
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 50<<20)).Decode(&d); err != nil {
			http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
			return
		}
		if err := a.Store.Replace(&d); err != nil {
			if errors.Is(err, photomatch.ErrStaleVersion) {
				http.Error(w, "Invalid version", http.StatusBadRequest)
				return
			}
			log.Printf("[HTTP] Error saving data: %v", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		log.Printf("[HTTP] Data replaced, version %d", d.Metadata.Version)
		writeJSON(w, http.StatusOK, map[string]int{"version": d.Metadata.Version})
	})

	mux.HandleFunc("GET /file/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if a.Config.DataDir == "" || name != filepath.Base(name) || name == "." || name == ".." {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(a.Config.DataDir, name))
	})

	mux.HandleFunc("GET /scenes/{scene}/edges", func(w http.ResponseWriter, r *http.Request) {
		sceneID, ok := pathInt(w, r, "scene")
		if !ok {
			return
		}
		edges, err := a.sceneEdges(sceneID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, edges)
	})

	mux.HandleFunc("GET /scenes/{scene}/photos/{photo}/projected.geojson", func(w http.ResponseWriter, r *http.Request) {
		photo, edges, ok := a.photoAndEdges(w, r)
		if !ok {
			return
		}
		projected := photomatch.ProjectEdges(photoCamera(photo), photo.Aspect(), edges)
		w.Header().Set("Content-Type", "application/geo+json")
		if err := json.NewEncoder(w).Encode(photomatch.ExportGeoJSON(projected, photo.Lines)); err != nil {
			log.Printf("Error encoding GeoJSON: %v", err)
		}
	})

	overlay := func(format string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sceneID, photoID, ok := pathIDs(w, r)
			if !ok {
				return
			}
			photo, err := a.Store.Photo(sceneID, photoID)
			if err != nil {
				writeError(w, err)
				return
			}
			_, meshes, err := a.sceneMeshes(sceneID)
			if err != nil {
				writeError(w, err)
				return
			}
			renderer, err := photomatch.NewOverlayRenderer(meshes, photo.Lines, photoCamera(photo), photo.Aspect())
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			w.Header().Set("Cache-Control", "no-cache")
			if format == "png" {
				w.Header().Set("Content-Type", "image/png")
				err = renderer.RenderToPNG(w)
			} else {
				w.Header().Set("Content-Type", "image/svg+xml")
				err = renderer.RenderToSVG(w)
			}
			if err != nil {
				log.Printf("Error rendering overlay %s: %v", format, err)
			}
		}
	}
	mux.HandleFunc("GET /scenes/{scene}/photos/{photo}/overlay.svg", overlay("svg"))
	mux.HandleFunc("GET /scenes/{scene}/photos/{photo}/overlay.png", overlay("png"))

	mux.HandleFunc("POST /scenes/{scene}/photos/{photo}/pick", func(w http.ResponseWriter, r *http.Request) {
		photo, edges, ok := a.photoAndEdges(w, r)
		if !ok {
			return
		}
		var p photomatch.Vector2
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
			return
		}
		projected := photomatch.ProjectEdges(photoCamera(photo), photo.Aspect(), edges)
		writeJSON(w, http.StatusOK, photomatch.Pick(p, photo.Lines, projected))
	})

	mux.HandleFunc("POST /scenes/{scene}/photos/{photo}/solve", func(w http.ResponseWriter, r *http.Request) {
		sceneID, photoID, ok := pathIDs(w, r)
		if !ok {
			return
		}
		if _, err := a.Store.Photo(sceneID, photoID); err != nil {
			writeError(w, err)
			return
		}
		if _, err := a.Config.Scene(sceneID); err != nil {
			writeError(w, err)
			return
		}

		req := photomatch.SolveRequest{SceneID: sceneID, PhotoID: photoID}
		if r.ContentLength > 0 {
			var body struct {
				Initial *photomatch.CameraTransform `json:"initial"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
				return
			}
			req.Initial = body.Initial
		}

		// Detached from the request so the solve outlives it.
		id := a.StartSolve(context.WithoutCancel(r.Context()), req)
		log.Printf("[HTTP] Started solve job %s for scene %d photo %d", id, sceneID, photoID)
		w.Header().Set("Location", "/solves/"+id)
		writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
	})

	// Line editing
	mux.HandleFunc("POST /scenes/{scene}/photos/{photo}/lines", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			V0 photomatch.Vector2 `json:"v0"`
			V1 photomatch.Vector2 `json:"v1"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
			return
		}
		a.editPhoto(w, r, http.StatusCreated, func(p *photomatch.Photo) (any, error) {
			return p.AddLine(body.V0, body.V1), nil
		})
	})

	mux.HandleFunc("DELETE /scenes/{scene}/photos/{photo}/lines/{line}", func(w http.ResponseWriter, r *http.Request) {
		lineID, ok := pathInt(w, r, "line")
		if !ok {
			return
		}
		a.editPhoto(w, r, http.StatusNoContent, func(p *photomatch.Photo) (any, error) {
			return nil, p.DeleteLine(lineID)
		})
	})

	mux.HandleFunc("PUT /scenes/{scene}/photos/{photo}/lines/{line}/endpoints/{index}", func(w http.ResponseWriter, r *http.Request) {
		lineID, ok := pathInt(w, r, "line")
		if !ok {
			return
		}
		index, ok := pathInt(w, r, "index")
		if !ok {
			return
		}
		var pos photomatch.Vector2
		if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
			http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
			return
		}
		a.editPhoto(w, r, http.StatusNoContent, func(p *photomatch.Photo) (any, error) {
			return nil, p.MoveLineEndpoint(photomatch.LineEndpoint{LineID: lineID, Index: index}, pos)
		})
	})

	mux.HandleFunc("PUT /scenes/{scene}/photos/{photo}/lines/{line}/link", func(w http.ResponseWriter, r *http.Request) {
		lineID, ok := pathInt(w, r, "line")
		if !ok {
			return
		}
		var ref photomatch.EdgeRef
		if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
			http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
			return
		}
		sceneID, ok := pathInt(w, r, "scene")
		if !ok {
			return
		}
		edges, err := a.sceneEdges(sceneID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !slices.ContainsFunc(edges, func(e photomatch.MatchEdge) bool { return e.Ref() == ref }) {
			http.Error(w, fmt.Sprintf("scene %d has no match edge %s", sceneID, ref), http.StatusBadRequest)
			return
		}
		a.editPhoto(w, r, http.StatusNoContent, func(p *photomatch.Photo) (any, error) {
			return nil, p.LinkLine(lineID, ref)
		})
	})

	mux.HandleFunc("DELETE /scenes/{scene}/photos/{photo}/lines/{line}/link", func(w http.ResponseWriter, r *http.Request) {
		lineID, ok := pathInt(w, r, "line")
		if !ok {
			return
		}
		a.editPhoto(w, r, http.StatusNoContent, func(p *photomatch.Photo) (any, error) {
			return nil, p.UnlinkLine(lineID)
		})
	})

	mux.HandleFunc("GET /solves", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, a.Solves.List())
	})

	mux.HandleFunc("GET /solves/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, err := a.Solves.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	mux.HandleFunc("DELETE /solves/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := a.Solves.Cancel(r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

// editPhoto applies fn to the photo named by the path and writes its
// result with the given status
func (a *App) editPhoto(w http.ResponseWriter, r *http.Request, status int, fn func(*photomatch.Photo) (any, error)) {
	sceneID, photoID, ok := pathIDs(w, r)
	if !ok {
		return
	}
	var out any
	err := a.Store.UpdatePhoto(sceneID, photoID, func(p *photomatch.Photo) error {
		var err error
		out, err = fn(p)
		return err
	})
	if err != nil {
		if errors.Is(err, photomatch.ErrLineNotFound) || errors.Is(err, photomatch.ErrPhotoNotFound) || errors.Is(err, photomatch.ErrSceneNotFound) {
			writeError(w, err)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if out == nil {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, out)
}

// photoAndEdges resolves the {scene} and {photo} path values
func (a *App) photoAndEdges(w http.ResponseWriter, r *http.Request) (photomatch.Photo, []photomatch.MatchEdge, bool) {
	sceneID, photoID, ok := pathIDs(w, r)
	if !ok {
		return photomatch.Photo{}, nil, false
	}
	photo, err := a.Store.Photo(sceneID, photoID)
	if err != nil {
		writeError(w, err)
		return photomatch.Photo{}, nil, false
	}
	edges, err := a.sceneEdges(sceneID)
	if err != nil {
		writeError(w, err)
		return photomatch.Photo{}, nil, false
	}
	return photo, edges, true
}

func pathIDs(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	sceneID, ok := pathInt(w, r, "scene")
	if !ok {
		return 0, 0, false
	}
	photoID, ok := pathInt(w, r, "photo")
	if !ok {
		return 0, 0, false
	}
	return sceneID, photoID, true
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid %s id %q", name, r.PathValue(name)), http.StatusBadRequest)
		return 0, false
	}
	return v, true
}

// writeError maps lookup failures to 404 and anything else to 500
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, photomatch.ErrSceneNotFound),
		errors.Is(err, photomatch.ErrPhotoNotFound),
		errors.Is(err, photomatch.ErrLineNotFound),
		errors.Is(err, photomatch.ErrJobNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		log.Printf("[HTTP] Error: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
