package domain

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "tally/pkg/domain-errors"
)

// CommissionID identifies a commission at any level. Precinct numbers are
// published as integers; virtual district commissions get ids allocated by
// the registry in a disjoint range.
type CommissionID int64

// EntityID identifies a deduplicated registry record.
type EntityID int64

// maxIDLength bounds untrusted id input from URLs.
const maxIDLength = 19

// ParseCommissionID validates a commission id taken from an untrusted source.
func ParseCommissionID(s string) (CommissionID, error) {
	v, err := parsePositive(s)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid commission id")
	}
	return CommissionID(v), nil
}

// ParseEntityID validates a registry id taken from an untrusted source.
func ParseEntityID(s string) (EntityID, error) {
	v, err := parsePositive(s)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid entity id")
	}
	return EntityID(v), nil
}

func parsePositive(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty id")
	}
	if len(s) > maxIDLength {
		return 0, fmt.Errorf("id too long")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("id must be positive")
	}
	return v, nil
}

func (id CommissionID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func (id EntityID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// CommissionRef is a weak upward reference to a commission.
type CommissionRef struct {
	ID    CommissionID `json:"id"`
	Level Level        `json:"level"`
}

func (r CommissionRef) String() string {
	return string(r.Level) + ":" + r.ID.String()
}

// ParseCommissionRef is the inverse of CommissionRef.String.
func ParseCommissionRef(s string) (CommissionRef, error) {
	v, err := ParseVenue(s)
	if err != nil {
		return CommissionRef{}, err
	}
	return CommissionRef{ID: v.CommissionID, Level: v.Level}, nil
}

// Venue is a place an entity has been seen at. Only commissions act as
// venues today; the level keeps precinct and territorial ids apart.
type Venue struct {
	Level        Level        `json:"level"`
	CommissionID CommissionID `json:"commission_id"`
}

func (v Venue) String() string {
	return string(v.Level) + ":" + v.CommissionID.String()
}

// ParseVenue is the inverse of Venue.String.
func ParseVenue(s string) (Venue, error) {
	level, id, ok := strings.Cut(s, ":")
	if !ok {
		return Venue{}, dErrors.Newf(dErrors.CodeInvalidInput, "invalid venue %q", s)
	}
	lvl, err := ParseLevel(level)
	if err != nil {
		return Venue{}, err
	}
	cid, err := ParseCommissionID(id)
	if err != nil {
		return Venue{}, err
	}
	return Venue{Level: lvl, CommissionID: cid}, nil
}
