package session

import (
	"fmt"

	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/mirror"
	"beltline.dev/internal/editor/model"
)

var railLayers = []string{"stone-path-background", "stone-path", "ties", "backplates", "metals"}

// catalogRenderer names sprite layers by prototype and direction; clients
// own the actual artwork.
type catalogRenderer struct {
	cat *catalogs.Catalogs
}

func (r catalogRenderer) Parts(e model.Entity, moving, ignoreConnections bool) []mirror.Part {
	base := fmt.Sprintf("%s/%d", e.Name, e.Direction)
	kind := e.Name
	if def, err := r.cat.Entity(e.Name); err == nil {
		kind = def.Type
	}
	var layers []string
	switch {
	case kind == "straight-rail" || kind == "curved-rail":
		for _, l := range railLayers {
			layers = append(layers, base+"/"+l)
		}
	case kind == "transport-belt" || kind == "heat-pipe":
		layers = []string{base}
		if !ignoreConnections {
			layers = append(layers, base+"/connections")
		}
	default:
		layers = []string{base, base + "/shadow"}
	}
	out := make([]mirror.Part, len(layers))
	for i, l := range layers {
		out[i] = mirror.Part{Sprite: l, Moving: moving}
	}
	return out
}
