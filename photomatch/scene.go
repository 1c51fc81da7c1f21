package photomatch

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateShapeID is returned when two shapes of a scene share an id.
var ErrDuplicateShapeID = errors.New("duplicate shape id")

// SceneDefinition is a named collection of placed shapes.
type SceneDefinition struct {
	ID     int         `json:"id" yaml:"id"`
	Name   string      `json:"name,omitempty" yaml:"name,omitempty"`
	Shapes []ShapeSpec `json:"shapes" yaml:"shapes"`
}

// Shape returns the shape with the given id.
func (s SceneDefinition) Shape(id int) (ShapeSpec, bool) {
	for _, sh := range s.Shapes {
		if sh.ID == id {
			return sh, true
		}
	}
	return ShapeSpec{}, false
}

// Validate builds every shape once and checks shape ids are unique.
func (s SceneDefinition) Validate() error {
	_, err := AssembleMeshes(s.Shapes)
	return err
}

// ShapeMesh is a shape instance with its vertices in world space. Faces and
// Edges index into Vertices exactly as in the local Geometry.
type ShapeMesh struct {
	ShapeID  int
	Name     string
	Type     ShapeType
	Vertices []Vector3
	Faces    []Face
	Edges    [][2]int
}

// MatchEdges returns the world-space match edges in edge index order.
func (m ShapeMesh) MatchEdges() []MatchEdge {
	out := make([]MatchEdge, len(m.Edges))
	for i, e := range m.Edges {
		out[i] = MatchEdge{
			ShapeID:   m.ShapeID,
			EdgeIndex: i,
			V0:        m.Vertices[e[0]],
			V1:        m.Vertices[e[1]],
		}
	}
	return out
}

// AssembleMeshes builds every shape and places it in world space.
func AssembleMeshes(shapes []ShapeSpec) ([]ShapeMesh, error) {
	seen := make(map[int]bool, len(shapes))
	meshes := make([]ShapeMesh, 0, len(shapes))

	for _, s := range shapes {
		if seen[s.ID] {
			return nil, fmt.Errorf("shape %d: %w", s.ID, ErrDuplicateShapeID)
		}
		seen[s.ID] = true

		g, err := s.Geometry()
		if err != nil {
			return nil, fmt.Errorf("shape %d: %w", s.ID, err)
		}

		xf := NewRigidTransform(s.Position, s.Rotation)
		world := make([]Vector3, len(g.Vertices))
		for i, v := range g.Vertices {
			world[i] = xf.Apply(v)
		}

		meshes = append(meshes, ShapeMesh{
			ShapeID:  s.ID,
			Name:     s.Name,
			Type:     g.Type,
			Vertices: world,
			Faces:    g.Faces,
			Edges:    g.Edges,
		})
	}
	return meshes, nil
}

// Assemble returns every match edge of every shape in world space, shapes
// in input order and edges in index order.
func Assemble(shapes []ShapeSpec) ([]MatchEdge, error) {
	meshes, err := AssembleMeshes(shapes)
	if err != nil {
		return nil, err
	}
	var edges []MatchEdge
	for _, m := range meshes {
		edges = append(edges, m.MatchEdges()...)
	}
	return edges, nil
}

// SceneCache memoizes assembled scenes by scene id.
type SceneCache struct {
	mu     sync.RWMutex
	meshes map[int][]ShapeMesh
	edges  map[int][]MatchEdge
}

// NewSceneCache creates an empty cache.
func NewSceneCache() *SceneCache {
	return &SceneCache{
		meshes: make(map[int][]ShapeMesh),
		edges:  make(map[int][]MatchEdge),
	}
}

// Meshes returns the assembled meshes of a scene, building them on first use.
func (c *SceneCache) Meshes(scene SceneDefinition) ([]ShapeMesh, error) {
	c.mu.RLock()
	m, ok := c.meshes[scene.ID]
	c.mu.RUnlock()
	if ok {
		return m, nil
	}
	m, _, err := c.load(scene)
	return m, err
}

// Edges returns the assembled match edges of a scene.
func (c *SceneCache) Edges(scene SceneDefinition) ([]MatchEdge, error) {
	c.mu.RLock()
	e, ok := c.edges[scene.ID]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}
	_, e, err := c.load(scene)
	return e, err
}

func (c *SceneCache) load(scene SceneDefinition) ([]ShapeMesh, []MatchEdge, error) {
	m, err := AssembleMeshes(scene.Shapes)
	if err != nil {
		return nil, nil, fmt.Errorf("scene %d: %w", scene.ID, err)
	}
	var edges []MatchEdge
	for _, sm := range m {
		edges = append(edges, sm.MatchEdges()...)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.meshes[scene.ID] = m
	c.edges[scene.ID] = edges
	return m, edges, nil
}

// Len returns the number of cached scenes.
func (c *SceneCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.meshes)
}
