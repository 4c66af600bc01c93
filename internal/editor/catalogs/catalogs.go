package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrUnknownEntity is returned when a name is missing from the prototype
// catalog. A well-formed catalog never produces it.
var ErrUnknownEntity = errors.New("unknown entity prototype")

// ProductivityModule is the item whose limitation list gates productivity
// modules for every tier.
const ProductivityModule = "productivity-module"

type Catalogs struct {
	Entities     EntityCatalog
	Recipes      RecipeCatalog
	Items        ItemCatalog
	UpdateGroups UpdateGroupCatalog
}

type EntityCatalog struct {
	ByName map[string]EntityDef
	Names  []string
	Digest string
}

type Size struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Wire struct {
	Red   Vec `json:"red"`
	Green Vec `json:"green"`
}

type WirePoint struct {
	Wire Wire `json:"wire"`
}

type ModuleSpec struct {
	ModuleSlots int `json:"module_slots"`
}

type EntityDef struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size Size   `json:"size"`

	PossibleRotations   []int       `json:"possible_rotations,omitempty"`
	CraftingCategories  []string    `json:"crafting_categories,omitempty"`
	ModuleSpecification *ModuleSpec `json:"module_specification,omitempty"`
	MaxDistance         int         `json:"max_distance,omitempty"`

	// IngredientCount caps the number of ingredients of accepted recipes
	// (0 = unlimited).
	IngredientCount int `json:"ingredient_count,omitempty"`
	// FluidRotationOnly kinds can only be rotated while crafting a fluid recipe.
	FluidRotationOnly bool `json:"fluid_rotation_only,omitempty"`
	// Stackable lists the kinds this entity may share grid cells with.
	Stackable []string `json:"stackable,omitempty"`

	ConnectionPoints            []WirePoint `json:"connection_points,omitempty"`
	InputConnectionPoints       []WirePoint `json:"input_connection_points,omitempty"`
	OutputConnectionPoints      []WirePoint `json:"output_connection_points,omitempty"`
	CircuitWireConnectionPoint  *WirePoint  `json:"circuit_wire_connection_point,omitempty"`
	CircuitWireConnectionPoints []WirePoint `json:"circuit_wire_connection_points,omitempty"`
}

type RecipeCatalog struct {
	ByName map[string]RecipeDef
	Names  []string
	Digest string
}

type Ingredient struct {
	Name   string `json:"name"`
	Amount int    `json:"amount"`
	Type   string `json:"type,omitempty"` // "item" (default) or "fluid"
}

type RecipeDef struct {
	Name        string       `json:"name"`
	Category    string       `json:"category,omitempty"`
	Ingredients []Ingredient `json:"ingredients"`
	Results     []Ingredient `json:"results,omitempty"`
	Result      string       `json:"result,omitempty"`
}

type ItemCatalog struct {
	ByName map[string]ItemDef
	Names  []string
	Digest string
}

type ItemDef struct {
	Name       string   `json:"name"`
	Type       string   `json:"type"` // "item", "module", ...
	Limitation []string `json:"limitation,omitempty"`
}

// UpdateGroup says that a change to any entity named in Is requires entities
// named in Updates to be redrawn when they are adjacent.
type UpdateGroup struct {
	Is      []string `json:"is"`
	Updates []string `json:"updates"`
}

type UpdateGroupCatalog struct {
	Groups []UpdateGroup
	Digest string
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadEntities(filepath.Join(configDir, "entities.json"), &c.Entities); err != nil {
		return nil, err
	}
	if err := loadRecipes(filepath.Join(configDir, "recipes.json"), &c.Recipes); err != nil {
		return nil, err
	}
	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items); err != nil {
		return nil, err
	}
	if err := loadUpdateGroups(filepath.Join(configDir, "update_groups.json"), &c.UpdateGroups); err != nil {
		return nil, err
	}
	return &c, nil
}

// New builds catalogs from in-memory definitions. Digests are computed over
// the canonical JSON encoding.
func New(entities []EntityDef, recipes []RecipeDef, items []ItemDef, groups []UpdateGroup) (*Catalogs, error) {
	var c Catalogs
	raw, _ := json.Marshal(entities)
	if err := indexEntities(raw, entities, &c.Entities); err != nil {
		return nil, err
	}
	raw, _ = json.Marshal(recipes)
	if err := indexRecipes(raw, recipes, &c.Recipes); err != nil {
		return nil, err
	}
	raw, _ = json.Marshal(items)
	if err := indexItems(raw, items, &c.Items); err != nil {
		return nil, err
	}
	raw, _ = json.Marshal(groups)
	c.UpdateGroups = UpdateGroupCatalog{Groups: groups, Digest: sha256Hex(raw)}
	return &c, nil
}

func (c *Catalogs) Entity(name string) (EntityDef, error) {
	d, ok := c.Entities.ByName[name]
	if !ok {
		return EntityDef{}, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
	}
	return d, nil
}

func (c *Catalogs) Recipe(name string) (RecipeDef, bool) {
	r, ok := c.Recipes.ByName[name]
	return r, ok
}

func (c *Catalogs) Item(name string) (ItemDef, bool) {
	it, ok := c.Items.ByName[name]
	return it, ok
}

// ProductivityAllowed reports whether productivity modules may be used with
// the recipe.
func (c *Catalogs) ProductivityAllowed(recipe string) bool {
	pm, ok := c.Items.ByName[ProductivityModule]
	if !ok {
		return false
	}
	for _, r := range pm.Limitation {
		if r == recipe {
			return true
		}
	}
	return false
}

// CanStack reports whether entities named a and b may share a grid cell.
func (c *Catalogs) CanStack(a, b string) bool {
	if da, ok := c.Entities.ByName[a]; ok && contains(da.Stackable, b) {
		return true
	}
	if db, ok := c.Entities.ByName[b]; ok && contains(db.Stackable, a) {
		return true
	}
	return false
}

// Dependents returns, per update group that names the entity, the kinds that
// must be redrawn around it.
func (c *Catalogs) Dependents(name string) [][]string {
	var out [][]string
	for _, g := range c.UpdateGroups.Groups {
		if contains(g.Is, name) {
			out = append(out, g.Updates)
		}
	}
	return out
}

func IsProductivityModule(item string) bool {
	return strings.Contains(item, ProductivityModule)
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadEntities(path string, out *EntityCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var defs []EntityDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("entities.json: %w", err)
	}
	return indexEntities(raw, defs, out)
}

func indexEntities(raw []byte, defs []EntityDef, out *EntityCatalog) error {
	out.Digest = sha256Hex(raw)
	out.ByName = make(map[string]EntityDef, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("entities.json: empty name")
		}
		if d.Size.X <= 0 || d.Size.Y <= 0 {
			return fmt.Errorf("entities.json: %s: non-positive size", d.Name)
		}
		if d.Type == "" {
			d.Type = d.Name
		}
		out.ByName[d.Name] = d
	}
	out.Names = sortedKeys(out.ByName)
	return nil
}

func loadRecipes(path string, out *RecipeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var defs []RecipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}
	return indexRecipes(raw, defs, out)
}

func indexRecipes(raw []byte, defs []RecipeDef, out *RecipeCatalog) error {
	out.Digest = sha256Hex(raw)
	out.ByName = make(map[string]RecipeDef, len(defs))
	for _, r := range defs {
		if r.Name == "" {
			return fmt.Errorf("recipes.json: empty name")
		}
		out.ByName[r.Name] = r
	}
	out.Names = sortedKeys(out.ByName)
	return nil
}

func loadItems(path string, out *ItemCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	return indexItems(raw, defs, out)
}

func indexItems(raw []byte, defs []ItemDef, out *ItemCatalog) error {
	out.Digest = sha256Hex(raw)
	out.ByName = make(map[string]ItemDef, len(defs))
	for _, it := range defs {
		if it.Name == "" {
			return fmt.Errorf("items.json: empty name")
		}
		out.ByName[it.Name] = it
	}
	out.Names = sortedKeys(out.ByName)
	return nil
}

func loadUpdateGroups(path string, out *UpdateGroupCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		// A catalog without update groups simply never propagates redraws.
		if os.IsNotExist(err) {
			out.Digest = sha256Hex(nil)
			return nil
		}
		return err
	}
	out.Digest = sha256Hex(raw)
	if err := json.Unmarshal(raw, &out.Groups); err != nil {
		return fmt.Errorf("update_groups.json: %w", err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
