package jp2view

import (
	"fmt"
	"slices"
)

// ChannelRole is what a mapped channel contributes to a displayed pixel.
type ChannelRole int

const (
	RoleGray ChannelRole = iota
	RoleRed
	RoleGreen
	RoleBlue
	RoleAlpha
	RolePremultipliedAlpha
	RoleGeneric
)

func (r ChannelRole) String() string {
	switch r {
	case RoleGray:
		return "gray"
	case RoleRed:
		return "red"
	case RoleGreen:
		return "green"
	case RoleBlue:
		return "blue"
	case RoleAlpha:
		return "alpha"
	case RolePremultipliedAlpha:
		return "premultiplied-alpha"
	case RoleGeneric:
		return "generic"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ColorTransform is applied to the colour channels after sampling.
type ColorTransform int

const (
	TransformNone ColorTransform = iota
	TransformSYCC
)

// Channel binds a codestream component to a display role.
// PaletteColumn is the pclr column looked up with the component's sample,
// or -1 when the sample is used directly.
type Channel struct {
	Component     int
	Role          ChannelRole
	PaletteColumn int
}

// ChannelMapping is the resolved set of display channels for one image.
type ChannelMapping struct {
	Channels  []Channel
	Palette   *Palette
	Transform ColorTransform
}

// Reference returns the component that defines the view grid.
func (m ChannelMapping) Reference() int {
	if len(m.Channels) == 0 {
		return 0
	}
	return m.Channels[0].Component
}

// Components returns the distinct components feeding the mapping, in channel order.
func (m ChannelMapping) Components() []int {
	var comps []int
	for _, ch := range m.Channels {
		if !slices.Contains(comps, ch.Component) {
			comps = append(comps, ch.Component)
		}
	}
	return comps
}

// Resolve builds the channel mapping for src. Container colour metadata is
// used when present; otherwise three or more components are treated as RGB
// and anything else as a single gray channel.
func Resolve(src *Source) ChannelMapping {
	numComps := src.NumComponents()
	info := src.Info

	if info != nil && info.Palette != nil && len(info.Mappings) > 0 {
		if m, ok := paletteMapping(info, numComps); ok {
			return m
		}
	}
	if info != nil && len(info.ChannelDefs) > 0 {
		if m, ok := channelDefMapping(info, numComps); ok {
			return m
		}
	}

	var m ChannelMapping
	if numComps >= 3 && !info.IsGrayscale() {
		m.Channels = []Channel{
			{Component: 0, Role: RoleRed, PaletteColumn: -1},
			{Component: 1, Role: RoleGreen, PaletteColumn: -1},
			{Component: 2, Role: RoleBlue, PaletteColumn: -1},
		}
		if info.IsSYCC() {
			m.Transform = TransformSYCC
		}
	} else {
		m.Channels = []Channel{{Component: 0, Role: RoleGray, PaletteColumn: -1}}
	}
	return m
}

// paletteMapping maps cmap entries to channels. Colour roles follow cmap order
// unless cdef reassigns them.
func paletteMapping(info *ContainerInfo, numComps int) (ChannelMapping, bool) {
	m := ChannelMapping{Palette: info.Palette}
	for _, cm := range info.Mappings {
		if cm.Component >= numComps {
			return ChannelMapping{}, false
		}
		col := -1
		if cm.Type == 1 {
			if cm.Column >= info.Palette.NumColumns() {
				return ChannelMapping{}, false
			}
			col = cm.Column
		}
		m.Channels = append(m.Channels, Channel{Component: cm.Component, PaletteColumn: col})
	}
	assignRoles(m.Channels, info)
	m.Channels = dropGeneric(m.Channels)
	if countColour(m.Channels) == 0 {
		return ChannelMapping{}, false
	}
	m.Channels = orderChannels(m.Channels)
	if info.IsSYCC() && countColour(m.Channels) == 3 {
		m.Transform = TransformSYCC
	}
	return m, true
}

// dropGeneric removes channels cdef left without a displayable role.
func dropGeneric(channels []Channel) []Channel {
	out := channels[:0]
	for _, ch := range channels {
		if ch.Role != RoleGeneric {
			out = append(out, ch)
		}
	}
	return out
}

// channelDefMapping builds one channel per codestream component described in cdef.
func channelDefMapping(info *ContainerInfo, numComps int) (ChannelMapping, bool) {
	var m ChannelMapping
	for c := range numComps {
		m.Channels = append(m.Channels, Channel{Component: c, PaletteColumn: -1})
	}
	assignRoles(m.Channels, info)

	channels := dropGeneric(m.Channels)
	if countColour(channels) == 0 {
		return ChannelMapping{}, false
	}
	m.Channels = orderChannels(channels)
	if info.IsSYCC() && countColour(m.Channels) == 3 {
		m.Transform = TransformSYCC
	}
	return m, true
}

// assignRoles sets each channel's role from cdef, indexed by channel position.
// Without cdef the i'th channel gets the i'th colour of the colour space.
func assignRoles(channels []Channel, info *ContainerInfo) {
	numColour := len(channels)
	if len(info.ChannelDefs) > 0 {
		numColour = 0
		for _, cd := range info.ChannelDefs {
			if cd.Type == 0 && cd.Channel < len(channels) {
				numColour++
			}
		}
	}
	gray := info.IsGrayscale() || numColour < 3
	colourRole := func(assoc int) ChannelRole {
		if gray {
			return RoleGray
		}
		switch assoc {
		case 1:
			return RoleRed
		case 2:
			return RoleGreen
		case 3:
			return RoleBlue
		}
		return RoleGeneric
	}

	if len(info.ChannelDefs) == 0 {
		for i := range channels {
			channels[i].Role = colourRole(i + 1)
		}
		return
	}

	for i := range channels {
		channels[i].Role = RoleGeneric
	}
	for _, cd := range info.ChannelDefs {
		if cd.Channel < 0 || cd.Channel >= len(channels) {
			continue
		}
		switch cd.Type {
		case 0:
			channels[cd.Channel].Role = colourRole(cd.Association)
		case 1:
			channels[cd.Channel].Role = RoleAlpha
		case 2:
			channels[cd.Channel].Role = RolePremultipliedAlpha
		}
	}
}

// orderChannels puts colour channels first in role order and opacity last.
func orderChannels(channels []Channel) []Channel {
	slices.SortStableFunc(channels, func(a, b Channel) int {
		return int(a.Role) - int(b.Role)
	})
	return channels
}

func countColour(channels []Channel) int {
	n := 0
	for _, ch := range channels {
		switch ch.Role {
		case RoleGray, RoleRed, RoleGreen, RoleBlue:
			n++
		}
	}
	return n
}

// narrow returns the single generic channel used when the mapped components
// cannot share one view grid.
func narrow(ref int) ChannelMapping {
	return ChannelMapping{
		Channels: []Channel{{Component: ref, Role: RoleGeneric, PaletteColumn: -1}},
	}
}
