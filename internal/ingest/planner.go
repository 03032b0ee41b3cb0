package ingest

import "fmt"

// RenditionKind identifies one of the fixed rendition tiers.
type RenditionKind string

const (
	KindOriginal RenditionKind = "ORIGINAL"
	KindLarge    RenditionKind = "LARGE"
	KindMedium   RenditionKind = "MEDIUM"
	KindSmall    RenditionKind = "SMALL"
)

func (k RenditionKind) String() string {
	return string(k)
}

// Tier couples a rendition kind with the pixel cap on its long edge.
type Tier struct {
	Kind RenditionKind
	Max  int
}

// DefaultPolicy mirrors the size classes of the upload pipeline:
// LARGE fits inside 1920px, MEDIUM inside 800px, SMALL inside 300px.
var DefaultPolicy = Policy{
	Tiers: []Tier{
		{Kind: KindLarge, Max: 1920},
		{Kind: KindMedium, Max: 800},
		{Kind: KindSmall, Max: 300},
	},
}

// Policy is the fixed set of derived size classes, largest first. The order
// is the enumeration order of the planned renditions and must stay stable so
// persistence and tests are reproducible.
type Policy struct {
	Tiers []Tier
}

// PlannedRendition is one derivation step decided by Plan. When Resize is
// false the original already fits inside the tier and its bytes are copied
// unchanged (copy-fill policy: every tier always exists, never upscaled).
type PlannedRendition struct {
	Kind   RenditionKind
	Width  int
	Height int
	Resize bool
}

// Plan decides the rendition set for an original of the given pixel
// dimensions. Pure function; panics on non-positive dimensions since those
// cannot come out of a successful decode.
func (p Policy) Plan(originalWidth, originalHeight int) []PlannedRendition {
	if originalWidth <= 0 || originalHeight <= 0 {
		panic(fmt.Sprintf("plan called with non-positive dimensions %dx%d", originalWidth, originalHeight))
	}

	planned := make([]PlannedRendition, 0, len(p.Tiers))
	for _, tier := range p.Tiers {
		if originalWidth > tier.Max || originalHeight > tier.Max {
			width, height := fitInside(originalWidth, originalHeight, tier.Max)
			planned = append(planned, PlannedRendition{
				Kind:   tier.Kind,
				Width:  width,
				Height: height,
				Resize: true,
			})
			continue
		}
		// Original undersizes the tier: fill it with a copy of the original.
		planned = append(planned, PlannedRendition{
			Kind:   tier.Kind,
			Width:  originalWidth,
			Height: originalHeight,
			Resize: false,
		})
	}
	return planned
}

// fitInside scales width x height down so the long edge equals max while
// preserving aspect ratio. Both results stay >= 1.
func fitInside(width, height, max int) (int, int) {
	if width >= height {
		scaled := int(float64(height) * float64(max) / float64(width))
		if scaled < 1 {
			scaled = 1
		}
		return max, scaled
	}
	scaled := int(float64(width) * float64(max) / float64(height))
	if scaled < 1 {
		scaled = 1
	}
	return scaled, max
}
