package algorand

import (
	"encoding/binary"
	"fmt"

	"github.com/algoease/backend/internal/core/domain"
)

// The contract stores one box per bounty:
//
//	name  = "bounty_" + 8-byte big-endian id
//	value = creator(32) | freelancer(32) | amount(8) | status(1) | description
//
// Freelancer is the zero address until someone accepts.
const (
	boxNamePrefix = "bounty_"

	boxCreatorOffset    = 0
	boxFreelancerOffset = 32
	boxAmountOffset     = 64
	boxStatusOffset     = 72
	boxDescOffset       = 73
)

// BountyBox is a decoded per-bounty contract box.
type BountyBox struct {
	ID          uint64
	Creator     string
	Freelancer  string // empty until accepted
	Amount      uint64
	Status      domain.Status
	Description string
}

// EncodeBoxName builds the box name for a bounty id.
func EncodeBoxName(bountyID uint64) []byte {
	name := make([]byte, 0, len(boxNamePrefix)+8)
	name = append(name, boxNamePrefix...)
	name = binary.BigEndian.AppendUint64(name, bountyID)
	return name
}

// ParseBoxName extracts the bounty id from a box name. Returns false for
// names that are not bounty boxes.
func ParseBoxName(name []byte) (uint64, bool) {
	if len(name) != len(boxNamePrefix)+8 {
		return 0, false
	}
	if string(name[:len(boxNamePrefix)]) != boxNamePrefix {
		return 0, false
	}
	return binary.BigEndian.Uint64(name[len(boxNamePrefix):]), true
}

// DecodeBountyBox decodes a bounty box value.
func DecodeBountyBox(name, value []byte) (*BountyBox, error) {
	id, ok := ParseBoxName(name)
	if !ok {
		return nil, fmt.Errorf("not a bounty box name: %q", name)
	}
	if len(value) < boxDescOffset {
		return nil, fmt.Errorf("bounty box too short: %d bytes", len(value))
	}

	creator, err := domain.EncodeAddress(value[boxCreatorOffset : boxCreatorOffset+32])
	if err != nil {
		return nil, fmt.Errorf("decode creator: %w", err)
	}

	box := &BountyBox{
		ID:          id,
		Creator:     creator,
		Amount:      binary.BigEndian.Uint64(value[boxAmountOffset : boxAmountOffset+8]),
		Description: string(value[boxDescOffset:]),
	}

	status, ok := domain.StatusFromContract(value[boxStatusOffset])
	if !ok {
		return nil, fmt.Errorf("unknown box status code %d", value[boxStatusOffset])
	}
	box.Status = status

	freelancerKey := value[boxFreelancerOffset : boxFreelancerOffset+32]
	if !domain.IsZeroAddress(freelancerKey) {
		freelancer, err := domain.EncodeAddress(freelancerKey)
		if err != nil {
			return nil, fmt.Errorf("decode freelancer: %w", err)
		}
		box.Freelancer = freelancer
	}

	return box, nil
}
