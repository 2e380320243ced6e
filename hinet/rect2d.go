package hinet

import (
	"github.com/fwmeng88/mdp-toolkit/common"
	"github.com/fwmeng88/mdp-toolkit/node"
)

// Rect2dConfig lays out rectangular receptive fields over a 2-D grid of
// input channels. Input channels are numbered row by row, x first.
type Rect2dConfig struct {
	XInChannels    int `json:"xInChannels"`
	YInChannels    int `json:"yInChannels"`
	XFieldChannels int `json:"xFieldChannels"`
	YFieldChannels int `json:"yFieldChannels"`
	// XFieldSpacing and YFieldSpacing are the distances between the
	// corners of neighbouring fields. Zero means the field size.
	XFieldSpacing int `json:"xFieldSpacing"`
	YFieldSpacing int `json:"yFieldSpacing"`
	// InChannelDim is the width of an input channel. Zero means 1.
	InChannelDim int `json:"inChannelDim"`
	// IgnoreCover accepts layouts that leave input channels unread.
	IgnoreCover bool `json:"ignoreCover"`
}

func (c *Rect2dConfig) defaults() {
	if c.XFieldSpacing == 0 {
		c.XFieldSpacing = c.XFieldChannels
	}
	if c.YFieldSpacing == 0 {
		c.YFieldSpacing = c.YFieldChannels
	}
	if c.InChannelDim == 0 {
		c.InChannelDim = 1
	}
}

// fieldCount returns the number of fields along one axis.
func fieldCount(axis string, in, field, spacing int, ignoreCover bool) (int, error) {
	if in <= 0 || field <= 0 || spacing <= 0 {
		return 0, common.Topologyf("%s: channel counts and spacing must be positive", axis)
	}
	if field > in {
		return 0, common.Topologyf("%s: field of %d channels is larger than the %d input channels", axis, field, in)
	}
	if !ignoreCover {
		if spacing > field {
			return 0, common.Topologyf("%s: spacing %d leaves gaps between fields of %d channels", axis, spacing, field)
		}
		if (in-field)%spacing != 0 {
			return 0, common.Topologyf("%s: fields of %d channels with spacing %d do not cover %d channels", axis, field, spacing, in)
		}
	}
	return (in-field)/spacing + 1, nil
}

// appendField appends the connections of the rectangular field with the
// given corner, row by row.
func appendField(conn []int, xIn, x0, y0, xField, yField, icd int) []int {
	for fy := 0; fy < yField; fy++ {
		for fx := 0; fx < xField; fx++ {
			ch := (y0+fy)*xIn + x0 + fx
			for k := 0; k < icd; k++ {
				conn = append(conn, ch*icd+k)
			}
		}
	}
	return conn
}

// Rectangular2dSwitchboard routes rectangular fields of a 2-D channel grid
// to its out channels. Out channels are ordered row by row, x first.
type Rectangular2dSwitchboard struct {
	ChannelSwitchboard
	cfg        Rect2dConfig
	xOut, yOut int
}

// NewRectangular2dSwitchboard lays out the fields of cfg. It fails with a
// *common.TopologyError if the fields do not fit the grid or, unless
// IgnoreCover is set, leave channels unread.
func NewRectangular2dSwitchboard(cfg Rect2dConfig, opts ...node.Option) (*Rectangular2dSwitchboard, error) {
	cfg.defaults()
	xOut, err := fieldCount("x", cfg.XInChannels, cfg.XFieldChannels, cfg.XFieldSpacing, cfg.IgnoreCover)
	if err != nil {
		return nil, err
	}
	yOut, err := fieldCount("y", cfg.YInChannels, cfg.YFieldChannels, cfg.YFieldSpacing, cfg.IgnoreCover)
	if err != nil {
		return nil, err
	}
	var conn []int
	for y := 0; y < yOut; y++ {
		for x := 0; x < xOut; x++ {
			conn = appendField(conn, cfg.XInChannels, x*cfg.XFieldSpacing, y*cfg.YFieldSpacing,
				cfg.XFieldChannels, cfg.YFieldChannels, cfg.InChannelDim)
		}
	}
	s := &Rectangular2dSwitchboard{
		ChannelSwitchboard: ChannelSwitchboard{Switchboard: Switchboard{Base: node.NewBase(0, opts)}},
		cfg:                cfg,
		xOut:               xOut,
		yOut:               yOut,
	}
	inputDim := cfg.XInChannels * cfg.YInChannels * cfg.InChannelDim
	outChannelDim := cfg.XFieldChannels * cfg.YFieldChannels * cfg.InChannelDim
	if err := s.initChannels(inputDim, conn, outChannelDim, cfg.InChannelDim); err != nil {
		return nil, err
	}
	return s, nil
}

// OutChannelsXY returns the number of fields along x and y.
func (s *Rectangular2dSwitchboard) OutChannelsXY() (int, int) { return s.xOut, s.yOut }

// UnusedChannels returns the input channels no field reads.
func (s *Rectangular2dSwitchboard) UnusedChannels() []int {
	return unusedChannels(s.connections, s.InputDim(), s.inChannelDim)
}

func (s *Rectangular2dSwitchboard) Copy() (node.Node, error) {
	cp := *s
	return &cp, nil
}

func unusedChannels(conn []int, inputDim, icd int) []int {
	used := make([]bool, inputDim/icd)
	for _, c := range conn {
		used[c/icd] = true
	}
	var unused []int
	for ch, u := range used {
		if !u {
			unused = append(unused, ch)
		}
	}
	return unused
}

// DoubleRect2dConfig lays out two interleaved tilings of rectangular fields.
type DoubleRect2dConfig struct {
	XInChannels    int  `json:"xInChannels"`
	YInChannels    int  `json:"yInChannels"`
	XFieldChannels int  `json:"xFieldChannels"`
	YFieldChannels int  `json:"yFieldChannels"`
	InChannelDim   int  `json:"inChannelDim"`
	IgnoreCover    bool `json:"ignoreCover"`
}

// DoubleRect2dSwitchboard routes a tiling of non-overlapping rectangular
// fields followed by a second tiling shifted by half a field in both
// directions, so that every second-tiling field overlaps four fields of
// the first one.
type DoubleRect2dSwitchboard struct {
	ChannelSwitchboard
	cfg DoubleRect2dConfig
}

// NewDoubleRect2dSwitchboard lays out the fields of cfg. Field sizes must
// be even.
func NewDoubleRect2dSwitchboard(cfg DoubleRect2dConfig, opts ...node.Option) (*DoubleRect2dSwitchboard, error) {
	if cfg.InChannelDim == 0 {
		cfg.InChannelDim = 1
	}
	if cfg.XFieldChannels%2 != 0 || cfg.YFieldChannels%2 != 0 {
		return nil, common.Topologyf("field sizes %dx%d must be even", cfg.XFieldChannels, cfg.YFieldChannels)
	}
	// half field spacing checks that the union of both tilings covers the grid
	if _, err := fieldCount("x", cfg.XInChannels, cfg.XFieldChannels, cfg.XFieldChannels/2, cfg.IgnoreCover); err != nil {
		return nil, err
	}
	if _, err := fieldCount("y", cfg.YInChannels, cfg.YFieldChannels, cfg.YFieldChannels/2, cfg.IgnoreCover); err != nil {
		return nil, err
	}
	var conn []int
	for _, offset := range []int{0, 1} {
		x0 := offset * cfg.XFieldChannels / 2
		y0 := offset * cfg.YFieldChannels / 2
		for y := y0; y+cfg.YFieldChannels <= cfg.YInChannels; y += cfg.YFieldChannels {
			for x := x0; x+cfg.XFieldChannels <= cfg.XInChannels; x += cfg.XFieldChannels {
				conn = appendField(conn, cfg.XInChannels, x, y, cfg.XFieldChannels, cfg.YFieldChannels, cfg.InChannelDim)
			}
		}
	}
	s := &DoubleRect2dSwitchboard{
		ChannelSwitchboard: ChannelSwitchboard{Switchboard: Switchboard{Base: node.NewBase(0, opts)}},
		cfg:                cfg,
	}
	inputDim := cfg.XInChannels * cfg.YInChannels * cfg.InChannelDim
	outChannelDim := cfg.XFieldChannels * cfg.YFieldChannels * cfg.InChannelDim
	if err := s.initChannels(inputDim, conn, outChannelDim, cfg.InChannelDim); err != nil {
		return nil, err
	}
	return s, nil
}

// UnusedChannels returns the input channels no field reads.
func (s *DoubleRect2dSwitchboard) UnusedChannels() []int {
	return unusedChannels(s.connections, s.InputDim(), s.inChannelDim)
}

func (s *DoubleRect2dSwitchboard) Copy() (node.Node, error) {
	cp := *s
	return &cp, nil
}

// DoubleRhomb2dConfig lays out rhombic fields over two interleaved grids:
// a long grid of XLongInChannels×YLongInChannels channels and a short grid
// of (XLongInChannels-1)×(YLongInChannels-1) channels sitting at the
// centres of the long grid cells. The input holds the long grid first,
// then the short grid, each row by row.
type DoubleRhomb2dConfig struct {
	XLongInChannels int `json:"xLongInChannels"`
	YLongInChannels int `json:"yLongInChannels"`
	// DiagFieldChannels is the number of channels along each diagonal edge
	// of a field.
	DiagFieldChannels int `json:"diagFieldChannels"`
	InChannelDim      int `json:"inChannelDim"`
}

// DoubleRhomb2dSwitchboard routes rhombic fields of the double grid to its
// out channels. Fields are ordered row by row, x first; the channels of a
// field are ordered along one diagonal, then the other.
type DoubleRhomb2dSwitchboard struct {
	ChannelSwitchboard
	cfg        DoubleRhomb2dConfig
	xOut, yOut int
}

// NewDoubleRhomb2dSwitchboard lays out the fields of cfg.
func NewDoubleRhomb2dSwitchboard(cfg DoubleRhomb2dConfig, opts ...node.Option) (*DoubleRhomb2dSwitchboard, error) {
	if cfg.InChannelDim == 0 {
		cfg.InChannelDim = 1
	}
	lx, ly, d := cfg.XLongInChannels, cfg.YLongInChannels, cfg.DiagFieldChannels
	if lx < 2 || ly < 2 {
		return nil, common.Topologyf("long grid of %dx%d channels is too small", lx, ly)
	}
	if d < 2 || d%2 != 0 {
		return nil, common.Topologyf("diagonal field size %d must be even and positive", d)
	}
	// s shifts the fields down by one when the grid is taller than wide
	s := 0
	if lx < ly {
		s = 1
	}
	xRange := lx - (1 - s) - d
	yRange := ly - s - d
	if xRange < 0 || yRange < 0 {
		return nil, common.Topologyf("field of diagonal %d does not fit the %dx%d grid", d, lx, ly)
	}
	if xRange%(d/2) != 0 || yRange%(d/2) != 0 {
		return nil, common.Topologyf("fields of diagonal %d do not cover the %dx%d grid", d, lx, ly)
	}
	xOut := xRange/(d/2) + 1
	yOut := yRange/(d/2) + 1

	// points live on a grid of doubled resolution: long grid channels at
	// even coordinates, short grid channels at odd ones
	channel := func(x, y int) int {
		if x%2 == 0 {
			return (y/2)*lx + x/2
		}
		return lx*ly + ((y-1)/2)*(lx-1) + (x-1)/2
	}
	icd := cfg.InChannelDim
	var conn []int
	for ky := 0; ky < yOut; ky++ {
		for kx := 0; kx < xOut; kx++ {
			xt := d - s + kx*d
			yt := s + ky*d
			for i := 0; i < d; i++ {
				for j := 0; j < d; j++ {
					ch := channel(xt+i-j, yt+i+j)
					for k := 0; k < icd; k++ {
						conn = append(conn, ch*icd+k)
					}
				}
			}
		}
	}
	sb := &DoubleRhomb2dSwitchboard{
		ChannelSwitchboard: ChannelSwitchboard{Switchboard: Switchboard{Base: node.NewBase(0, opts)}},
		cfg:                cfg,
		xOut:               xOut,
		yOut:               yOut,
	}
	inputDim := (lx*ly + (lx-1)*(ly-1)) * icd
	if err := sb.initChannels(inputDim, conn, d*d*icd, icd); err != nil {
		return nil, err
	}
	return sb, nil
}

// OutChannelsXY returns the number of fields along x and y.
func (s *DoubleRhomb2dSwitchboard) OutChannelsXY() (int, int) { return s.xOut, s.yOut }

func (s *DoubleRhomb2dSwitchboard) Copy() (node.Node, error) {
	cp := *s
	return &cp, nil
}
