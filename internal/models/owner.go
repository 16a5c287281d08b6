package models

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

type OwnerKind int

const (
	OwnerNone OwnerKind = iota
	OwnerAnonymous
	OwnerUser
)

func (k OwnerKind) String() string {
	switch k {
	case OwnerAnonymous:
		return "anonymous"
	case OwnerUser:
		return "user"
	default:
		return "none"
	}
}

// Owner is who a video or generation belongs to: nobody, an anonymous
// browser session, or an authenticated user. Never both.
type Owner struct {
	kind      OwnerKind
	userID    uuid.UUID
	sessionID string
}

func Unowned() Owner { return Owner{} }

func UserOwner(id uuid.UUID) Owner {
	if id == uuid.Nil {
		return Owner{}
	}
	return Owner{kind: OwnerUser, userID: id}
}

func AnonymousOwner(sessionID string) Owner {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Owner{}
	}
	return Owner{kind: OwnerAnonymous, sessionID: sessionID}
}

// CallerOwner picks the owner a request acts as. An authenticated user wins
// over the anonymous session the same browser may still be carrying.
func CallerOwner(userID uuid.UUID, sessionID string) Owner {
	if userID != uuid.Nil {
		return UserOwner(userID)
	}
	return AnonymousOwner(sessionID)
}

func (o Owner) Kind() OwnerKind { return o.kind }

func (o Owner) IsZero() bool { return o.kind == OwnerNone }

func (o Owner) UserID() (uuid.UUID, bool) {
	return o.userID, o.kind == OwnerUser
}

func (o Owner) SessionID() (string, bool) {
	return o.sessionID, o.kind == OwnerAnonymous
}

// Columns returns the (user_id, anonymous_session_id) pair stored in the database.
func (o Owner) Columns() (*uuid.UUID, *string) {
	switch o.kind {
	case OwnerUser:
		id := o.userID
		return &id, nil
	case OwnerAnonymous:
		s := o.sessionID
		return nil, &s
	default:
		return nil, nil
	}
}

// OwnerFromColumns rebuilds an Owner from storage. Rows written before the
// columns were kept exclusive may carry both; the user id wins.
func OwnerFromColumns(userID *uuid.UUID, sessionID *string) Owner {
	if userID != nil && *userID != uuid.Nil {
		return UserOwner(*userID)
	}
	if sessionID != nil {
		return AnonymousOwner(*sessionID)
	}
	return Owner{}
}

func (o Owner) String() string {
	switch o.kind {
	case OwnerUser:
		return "user:" + o.userID.String()
	case OwnerAnonymous:
		return "session:" + o.sessionID
	default:
		return "none"
	}
}

type ownerJSON struct {
	UserID             *uuid.UUID `json:"user_id"`
	AnonymousSessionID *string    `json:"anonymous_session_id"`
}

func (o Owner) MarshalJSON() ([]byte, error) {
	userID, sessionID := o.Columns()
	return json.Marshal(ownerJSON{UserID: userID, AnonymousSessionID: sessionID})
}

func (o *Owner) UnmarshalJSON(data []byte) error {
	var raw ownerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = OwnerFromColumns(raw.UserID, raw.AnonymousSessionID)
	return nil
}
