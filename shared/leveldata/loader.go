package leveldata

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/automoto/kitchen-mp/shared/netconfig"
	"github.com/lafriks/go-tiled"
	"github.com/leap-fish/necs/esync"
)

//go:embed all:kitchens
var kitchenFS embed.FS

// DefaultLayoutPath is the kitchen shipped with the binaries.
const DefaultLayoutPath = "kitchens/kitchen.tmx"

const countersGroup = "Counters"

// DefaultLayout loads the embedded kitchen.
func DefaultLayout() (*Layout, error) {
	return LoadLayout(kitchenFS, DefaultLayoutPath)
}

// LoadLayout parses a TMX file and returns its counters. It takes an fs.FS so
// callers can pass embed.FS or os.DirFS.
func LoadLayout(fsys fs.FS, tmxPath string) (*Layout, error) {
	levelMap, err := tiled.LoadFile(tmxPath, tiled.WithFileSystem(fsys))
	if err != nil {
		return nil, fmt.Errorf("load TMX %s: %w", tmxPath, err)
	}

	layout := &Layout{
		Name:      strings.TrimSuffix(filepath.Base(tmxPath), ".tmx"),
		MapWidth:  levelMap.Width * levelMap.TileWidth,
		MapHeight: levelMap.Height * levelMap.TileHeight,
	}

	seen := make(map[esync.NetworkId]bool)
	for _, og := range levelMap.ObjectGroups {
		if og.Name != countersGroup {
			continue
		}
		for _, o := range og.Objects {
			if o.ID >= netconfig.FirstEntityNetworkID {
				return nil, fmt.Errorf("counter %q: object id %d collides with entity ids", o.Name, o.ID)
			}
			id := esync.NetworkId(o.ID)
			if seen[id] {
				return nil, fmt.Errorf("counter %q: duplicate object id %d", o.Name, o.ID)
			}
			seen[id] = true

			layout.Counters = append(layout.Counters, Counter{
				ID:   id,
				Name: o.Name,
				Kind: o.Properties.GetString("kind"),
				Item: o.Properties.GetString("item"),
				X:    o.X,
				Y:    o.Y,
			})
		}
	}

	sort.Slice(layout.Counters, func(i, j int) bool {
		return layout.Counters[i].ID < layout.Counters[j].ID
	})

	return layout, nil
}

// LoadAllLayouts discovers all .tmx files in dir within fsys and returns them
// keyed by stem name plus a sorted list of names.
func LoadAllLayouts(fsys fs.FS, dir string) (map[string]*Layout, []string, error) {
	pattern := dir + "/*.tmx"
	matches, err := fs.Glob(fsys, pattern)
	if err != nil {
		return nil, nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("no .tmx files found in %s", dir)
	}

	layouts := make(map[string]*Layout, len(matches))
	names := make([]string, 0, len(matches))
	for _, path := range matches {
		layout, err := LoadLayout(fsys, path)
		if err != nil {
			return nil, nil, fmt.Errorf("load %s: %w", path, err)
		}
		layouts[layout.Name] = layout
		names = append(names, layout.Name)
	}

	sort.Strings(names)
	return layouts, names, nil
}
