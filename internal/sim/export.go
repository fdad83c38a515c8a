package sim

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Export returns a config blob that rebuilds the current world through New:
// same tick, entity IDs, versions, positions, regions and allocator state.
// Hosts persist it as an opaque save.
func (c *Core) Export() ([]byte, error) {
	if c.closed {
		return nil, ErrShutdown
	}
	cfg := c.cfg
	cfg.StartTick = c.current.Tick
	cfg.NextEntityID = uint64(c.world.ents.Pool().Next())

	entities := make([]EntityDef, 0, len(c.current.Entities))
	for _, id := range c.current.EntityIDs() {
		p, _ := c.world.pos.Get(id)
		b, _ := c.world.body.Get(id)
		entities = append(entities, EntityDef{
			ID:      uint64(id),
			Version: c.current.Entities[id].Version,
			X:       p.X,
			Y:       p.Y,
			Heading: b.Heading,
			Tag:     b.Tag,
			Wander:  b.Wander,
			Data:    encodeData(b.Data),
		})
	}
	cfg.Entities = &entities

	cfg.Regions = make([]RegionDef, 0, len(c.current.Regions))
	for _, rc := range c.current.RegionCoords() {
		cfg.Regions = append(cfg.Regions, RegionDef{
			X:    rc.X,
			Y:    rc.Y,
			Data: encodeData(c.current.Regions[rc].Payload),
		})
	}

	out, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, fmt.Errorf("export config: %w", err)
	}
	return out, nil
}
