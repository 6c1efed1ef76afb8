package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const idSeparator = ":"

// JobID is the structured form of "{kind}:{ownerId}:{token}". The token is a
// random UUID, so the id is unique per submission and names its owner.
type JobID struct {
	Kind    string
	OwnerID string
	Token   string
}

func (id JobID) String() string {
	return id.Kind + idSeparator + id.OwnerID + idSeparator + id.Token
}

func NewJobID(kind, ownerID string) JobID {
	return JobID{Kind: kind, OwnerID: ownerID, Token: uuid.NewString()}
}

// ParseJobID splits raw on its first and last separator, so owner ids may
// themselves contain ":". When only the token is malformed the returned id
// still carries Kind and OwnerID alongside ErrMalformedJobID.
func ParseJobID(raw string) (JobID, error) {
	first := strings.Index(raw, idSeparator)
	last := strings.LastIndex(raw, idSeparator)
	if first <= 0 || last <= first+1 || last == len(raw)-1 {
		return JobID{}, fmt.Errorf("%w: %q", ErrMalformedJobID, raw)
	}

	id := JobID{
		Kind:    raw[:first],
		OwnerID: raw[first+1 : last],
		Token:   raw[last+1:],
	}
	if _, err := uuid.Parse(id.Token); err != nil {
		return JobID{Kind: id.Kind, OwnerID: id.OwnerID}, fmt.Errorf("%w: %q", ErrMalformedJobID, raw)
	}
	return id, nil
}
