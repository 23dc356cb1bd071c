package a2a

import (
	"encoding/json"
	"fmt"
)

// PublishedCard is an agent card rendered once into immutable bytes, so every
// publication of the descriptor is byte-identical.
type PublishedCard struct {
	card  AgentCard
	bytes []byte
}

func PublishCard(card AgentCard) (*PublishedCard, error) {
	b, err := json.Marshal(card)
	if err != nil {
		return nil, fmt.Errorf("a2a: encoding agent card: %w", err)
	}
	return &PublishedCard{card: card, bytes: b}, nil
}

// Bytes returns a copy of the rendered descriptor.
func (p *PublishedCard) Bytes() []byte {
	return append([]byte(nil), p.bytes...)
}

func (p *PublishedCard) Card() AgentCard {
	c := p.card
	c.Skills = append([]Skill(nil), p.card.Skills...)
	return c
}

func (p *PublishedCard) HasSkill(id string) bool {
	for _, s := range p.card.Skills {
		if s.ID == id {
			return true
		}
	}
	return false
}
