package photomatch

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrSceneNotFound is returned for an unknown scene id.
	ErrSceneNotFound = errors.New("scene not found")
	// ErrPhotoNotFound is returned for an unknown photo id.
	ErrPhotoNotFound = errors.New("photo not found")
	// ErrLineNotFound is returned for an unknown line id.
	ErrLineNotFound = errors.New("line not found")
)

// Metadata carries the document version. Every write must raise it.
type Metadata struct {
	Version int `json:"version"`
}

// Data is the document persisted in data.json: scenes, their photos, and
// the lines drawn on each photo. UI state written by the browser client is
// kept verbatim.
type Data struct {
	Metadata Metadata        `json:"_metadata"`
	UIData   json.RawMessage `json:"_uiData,omitempty"`
	Scenes   []SceneData     `json:"scenes"`
}

// SceneData holds the photos of one scene. The scene geometry itself lives
// in the configuration.
type SceneData struct {
	ID     int             `json:"id"`
	Name   string          `json:"name,omitempty"`
	Photos []Photo         `json:"photos"`
	UIData json.RawMessage `json:"_uiData,omitempty"`
}

// Photo is one photograph with its lines and camera.
type Photo struct {
	ID       int         `json:"id"`
	Filename string      `json:"filename,omitempty"`
	Width    int         `json:"width,omitempty"`
	Height   int         `json:"height,omitempty"`
	Lines    []Line      `json:"lines"`
	UIData   PhotoUIData `json:"_uiData"`
}

// Aspect returns width/height, or 1 when the size is unknown.
func (p Photo) Aspect() float64 {
	if p.Width <= 0 || p.Height <= 0 {
		return 1
	}
	return float64(p.Width) / float64(p.Height)
}

// Camera returns the stored camera, if any.
func (p Photo) Camera() (CameraTransform, bool) {
	if p.UIData.CameraTransform == nil {
		return CameraTransform{}, false
	}
	return *p.UIData.CameraTransform, true
}

// PhotoUIData is the per-photo client state. Only the camera is
// interpreted; every other field round-trips untouched.
type PhotoUIData struct {
	CameraTransform *CameraTransform
	Extra           map[string]json.RawMessage
}

// MarshalJSON merges the camera back into the extra fields.
func (u PhotoUIData) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(u.Extra)+1)
	for k, v := range u.Extra {
		out[k] = v
	}
	if u.CameraTransform != nil {
		raw, err := json.Marshal(u.CameraTransform)
		if err != nil {
			return nil, err
		}
		out["cameraTransform"] = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the camera from the other fields.
func (u *PhotoUIData) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*u = PhotoUIData{}
	if raw, ok := fields["cameraTransform"]; ok {
		delete(fields, "cameraTransform")
		if string(raw) != "null" {
			var c CameraTransform
			if err := json.Unmarshal(raw, &c); err != nil {
				return fmt.Errorf("cameraTransform: %w", err)
			}
			u.CameraTransform = &c
		}
	}
	if len(fields) > 0 {
		u.Extra = fields
	}
	return nil
}

// Scene returns the scene with the given id.
func (d *Data) Scene(id int) (*SceneData, error) {
	for i := range d.Scenes {
		if d.Scenes[i].ID == id {
			return &d.Scenes[i], nil
		}
	}
	return nil, fmt.Errorf("scene %d: %w", id, ErrSceneNotFound)
}

// Photo returns the photo with the given ids.
func (d *Data) Photo(sceneID, photoID int) (*Photo, error) {
	s, err := d.Scene(sceneID)
	if err != nil {
		return nil, err
	}
	for i := range s.Photos {
		if s.Photos[i].ID == photoID {
			return &s.Photos[i], nil
		}
	}
	return nil, fmt.Errorf("scene %d photo %d: %w", sceneID, photoID, ErrPhotoNotFound)
}

// Clone returns a deep copy.
func (d *Data) Clone() (*Data, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("copying data: %w", err)
	}
	var out Data
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("copying data: %w", err)
	}
	return &out, nil
}

// NextLineID is one more than the id of the last line, or 0 without lines.
func NextLineID(lines []Line) int {
	if len(lines) == 0 {
		return 0
	}
	return lines[len(lines)-1].ID + 1
}

func (p *Photo) line(id int) (*Line, error) {
	for i := range p.Lines {
		if p.Lines[i].ID == id {
			return &p.Lines[i], nil
		}
	}
	return nil, fmt.Errorf("line %d: %w", id, ErrLineNotFound)
}

// AddLine appends an unlinked line and returns it.
func (p *Photo) AddLine(v0, v1 Vector2) Line {
	l := Line{ID: NextLineID(p.Lines), V0: v0, V1: v1}
	p.Lines = append(p.Lines, l)
	return l
}

// DeleteLine removes a line.
func (p *Photo) DeleteLine(id int) error {
	for i := range p.Lines {
		if p.Lines[i].ID == id {
			p.Lines = append(p.Lines[:i], p.Lines[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("line %d: %w", id, ErrLineNotFound)
}

// MoveLineEndpoint moves one end of a line.
func (p *Photo) MoveLineEndpoint(ep LineEndpoint, pos Vector2) error {
	l, err := p.line(ep.LineID)
	if err != nil {
		return err
	}
	switch ep.Index {
	case 0:
		l.V0 = pos
	case 1:
		l.V1 = pos
	default:
		return fmt.Errorf("line %d: endpoint index must be 0 or 1, got %d", ep.LineID, ep.Index)
	}
	return nil
}

// LinkLine links a line to a match edge, replacing any previous link.
func (p *Photo) LinkLine(id int, ref EdgeRef) error {
	if ref.ShapeID < 0 {
		return fmt.Errorf("line %d: negative shape id %d", id, ref.ShapeID)
	}
	if ref.EdgeIndex < 0 {
		return fmt.Errorf("line %d: negative edge index %d", id, ref.EdgeIndex)
	}
	l, err := p.line(id)
	if err != nil {
		return err
	}
	r := ref
	l.Match = &r
	return nil
}

// UnlinkLine clears the link of a line.
func (p *Photo) UnlinkLine(id int) error {
	l, err := p.line(id)
	if err != nil {
		return err
	}
	l.Match = nil
	return nil
}

// SetCamera stores a camera.
func (p *Photo) SetCamera(c CameraTransform) {
	p.UIData.CameraTransform = &c
}
