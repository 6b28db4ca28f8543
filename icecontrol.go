package ice

import (
	"encoding/binary"

	"github.com/pion/stun"
)

// tiebreakerSize is a size of 64 bit tiebreaker value.
const tiebreakerSize = 8 // 64 bit

// AttrControlled represents ICE-CONTROLLED attribute.
type AttrControlled uint64

// AddTo adds ICE-CONTROLLED to message.
func (c AttrControlled) AddTo(m *stun.Message) error {
	v := make([]byte, tiebreakerSize)
	binary.BigEndian.PutUint64(v, uint64(c))
	m.Add(stun.AttrICEControlled, v)
	return nil
}

// GetFrom decodes ICE-CONTROLLED from message.
func (c *AttrControlled) GetFrom(m *stun.Message) error {
	v, err := m.Get(stun.AttrICEControlled)
	if err != nil {
		return err
	}
	if err = stun.CheckSize(stun.AttrICEControlled, len(v), tiebreakerSize); err != nil {
		return err
	}
	*c = AttrControlled(binary.BigEndian.Uint64(v))
	return nil
}

// AttrControlling represents ICE-CONTROLLING attribute.
type AttrControlling uint64

// AddTo adds ICE-CONTROLLING to message.
func (c AttrControlling) AddTo(m *stun.Message) error {
	v := make([]byte, tiebreakerSize)
	binary.BigEndian.PutUint64(v, uint64(c))
	m.Add(stun.AttrICEControlling, v)
	return nil
}

// GetFrom decodes ICE-CONTROLLING from message.
func (c *AttrControlling) GetFrom(m *stun.Message) error {
	v, err := m.Get(stun.AttrICEControlling)
	if err != nil {
		return err
	}
	if err = stun.CheckSize(stun.AttrICEControlling, len(v), tiebreakerSize); err != nil {
		return err
	}
	*c = AttrControlling(binary.BigEndian.Uint64(v))
	return nil
}
