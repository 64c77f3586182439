// Package config holds the mailbox map: which IP blocks exist, where their
// interrupts start and which instances form each link.
package config

import (
	"encoding/json"
	"errors"
	"time"

	"rtps/link"
	"rtps/mailbox"
)

var (
	ErrDuplicateLabel = errors.New("config: duplicate link label")
	ErrUnknownBlock   = errors.New("config: link references unknown block")
	ErrBadInstance    = errors.New("config: instance out of range")
	ErrBadInterrupt   = errors.New("config: interrupt index out of range")
	ErrBadRole        = errors.New("config: role must be server or client")
	ErrNoBlocks       = errors.New("config: no mailbox blocks")
	ErrIRQOverlap     = errors.New("config: block interrupt ranges overlap")
)

// Load parses a JSON system description, applies defaults and validates it
func Load(jsonData []byte) (*System, error) {
	var sys System

	if err := json.Unmarshal(jsonData, &sys); err != nil {
		return nil, err
	}

	applyDefaults(&sys)

	if err := sys.Validate(); err != nil {
		return nil, err
	}
	return &sys, nil
}

// applyDefaults fills in missing values
func applyDefaults(sys *System) {
	if sys.Name == "" {
		sys.Name = "rtps"
	}
	if sys.QueueSize == 0 {
		sys.QueueSize = 4
	}
	if sys.MaxLinks == 0 {
		sys.MaxLinks = link.DefaultMaxLinks
	}

	for i := range sys.Links {
		l := &sys.Links[i]
		if l.Role == "" {
			if l.Owner != 0 {
				l.Role = "server"
			} else {
				l.Role = "client"
			}
		}
		if l.Local == 0 {
			l.Local = l.Owner
		}
	}
}

// Validate checks block interrupt ranges, labels, block references and
// index ranges
func (s *System) Validate() error {
	if len(s.Blocks) == 0 {
		return ErrNoBlocks
	}

	// Each block owns IRQBase..IRQBase+IntIndices-1; an IRQ must map to one block
	for i, a := range s.Blocks {
		for _, b := range s.Blocks[i+1:] {
			if a.IRQBase < b.IRQBase+mailbox.IntIndices && b.IRQBase < a.IRQBase+mailbox.IntIndices {
				return errors.Join(ErrIRQOverlap, errors.New(a.Name+", "+b.Name))
			}
		}
	}

	seen := make(map[string]bool, len(s.Links))
	for _, l := range s.Links {
		if seen[l.Label] {
			return errors.Join(ErrDuplicateLabel, errors.New(l.Label))
		}
		seen[l.Label] = true

		if _, ok := s.Block(l.Block); !ok {
			return errors.Join(ErrUnknownBlock, errors.New(l.Label+": "+l.Block))
		}
		if l.In >= mailbox.Instances || l.Out >= mailbox.Instances {
			return errors.Join(ErrBadInstance, errors.New(l.Label))
		}
		if l.RcvInt >= mailbox.IntIndices || l.AckInt >= mailbox.IntIndices {
			return errors.Join(ErrBadInterrupt, errors.New(l.Label))
		}
		switch l.Role {
		case "", "server", "client":
		default:
			return errors.Join(ErrBadRole, errors.New(l.Label+": "+l.Role))
		}
	}
	return nil
}

// Block returns the block called name
func (s *System) Block(name string) (Block, bool) {
	for _, b := range s.Blocks {
		if b.Name == name {
			return b, true
		}
	}
	return Block{}, false
}

// LinkConfig resolves a link description into a link.Config
func (s *System) LinkConfig(l Link) (link.Config, error) {
	b, ok := s.Block(l.Block)
	if !ok {
		return link.Config{}, ErrUnknownBlock
	}

	role := link.RoleAuto
	switch l.Role {
	case "server":
		role = link.RoleServer
	case "client":
		role = link.RoleClient
	}

	return link.Config{
		Label:       l.Label,
		Base:        uintptr(b.Base),
		IRQBase:     b.IRQBase,
		InInstance:  l.In,
		OutInstance: l.Out,
		RcvInt:      l.RcvInt,
		AckInt:      l.AckInt,
		Owner:       l.Owner,
		Role:        role,
		Local:       l.Local,
		Remote:      l.Remote,
		Timeout:     time.Duration(l.TimeoutMS) * time.Millisecond,
	}, nil
}

// FindLink returns the link description with label
func (s *System) FindLink(label string) (Link, bool) {
	for _, l := range s.Links {
		if l.Label == label {
			return l, true
		}
	}
	return Link{}, false
}

// ClientLinks returns the client links in map order. The console addresses
// links by their index in this list.
func (s *System) ClientLinks() []Link {
	var out []Link
	for _, l := range s.Links {
		if l.Role == "client" {
			out = append(out, l)
		}
	}
	return out
}

// Preset returns the compiled-in map of the named core: rtps, trch or hpps
func Preset(name string) (*System, bool) {
	switch name {
	case "rtps":
		return Default(), true
	case "trch":
		return trch(), true
	case "hpps":
		return hpps(), true
	}
	return nil, false
}

// Default returns the compiled-in map of the RTPS firmware
func Default() *System {
	sys := &System{
		Name:     "rtps",
		GICBase:  0xf9a00000,
		UARTBase: 0x30000000,
		Blocks: []Block{
			{Name: "lsio", Base: 0x3000a000, IRQBase: 72},
			{Name: "hpps", Base: 0xf9220000, IRQBase: 136},
		},
		Links: []Link{
			{
				// RTPS asks TRCH; TRCH owns these instances
				Label: "trch", Block: "lsio",
				In: 1, Out: 0, RcvInt: 2, AckInt: 3,
				Role: "client", Local: MasterRTPSCPU0, Remote: MasterTRCH,
				SelfTest: true,
			},
			{
				// HPPS asks RTPS; RTPS owns these instances
				Label: "hpps", Block: "hpps",
				In: 2, Out: 3, RcvInt: 2, AckInt: 3,
				Owner: MasterRTPSCPU0, Remote: MasterHPPSCPU0,
			},
		},
	}
	applyDefaults(sys)
	return sys
}

// trch is the peer side of the RTPS to TRCH link
func trch() *System {
	sys := &System{
		Name:   "trch",
		Blocks: []Block{{Name: "lsio", Base: 0x3000a000, IRQBase: 72}},
		Links: []Link{{
			Label: "rtps", Block: "lsio",
			In: 0, Out: 1, RcvInt: 0, AckInt: 1,
			Owner: MasterTRCH, Remote: MasterRTPSCPU0,
		}},
	}
	applyDefaults(sys)
	return sys
}

// hpps is the requesting side of the HPPS to RTPS link
func hpps() *System {
	sys := &System{
		Name:   "hpps",
		Blocks: []Block{{Name: "hpps", Base: 0xf9220000, IRQBase: 136}},
		Links: []Link{{
			Label: "rtps", Block: "hpps",
			In: 3, Out: 2, RcvInt: 4, AckInt: 5,
			Role: "client", Local: MasterHPPSCPU0, Remote: MasterRTPSCPU0,
			SelfTest: true,
		}},
	}
	applyDefaults(sys)
	return sys
}
