package broadcast

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// UpdateType names the change an Update announces.
type UpdateType string

const (
	RoleChanged       UpdateType = "ROLE_CHANGED"
	PermissionUpdated UpdateType = "PERMISSION_UPDATED"
	ActorDeactivated  UpdateType = "ACTOR_DEACTIVATED"
	CacheInvalidated  UpdateType = "CACHE_INVALIDATED"
)

// Valid reports whether t is a known update type.
func (t UpdateType) Valid() bool {
	switch t {
	case RoleChanged, PermissionUpdated, ActorDeactivated, CacheInvalidated:
		return true
	}
	return false
}

var (
	ErrInvalidUpdate = errors.New("invalid permission update")
	ErrMalformed     = errors.New("malformed permission update payload")
)

// Update is a PermissionUpdate event. ID, Timestamp and Origin are filled by
// Publish when empty.
type Update struct {
	ID        string     `cbor:"1,keyasint" json:"id"`
	Type      UpdateType `cbor:"2,keyasint" json:"type"`
	ActorID   string     `cbor:"3,keyasint,omitempty" json:"actor_id,omitempty"`
	Resource  string     `cbor:"4,keyasint,omitempty" json:"resource,omitempty"`
	Timestamp time.Time  `cbor:"5,keyasint" json:"timestamp"`
	Origin    string     `cbor:"6,keyasint" json:"origin"`
}

// Validate checks the type and the fields the type requires.
func (u Update) Validate() error {
	if !u.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidUpdate, u.Type)
	}
	if (u.Type == RoleChanged || u.Type == ActorDeactivated) && u.ActorID == "" {
		return fmt.Errorf("%w: %s requires an actor", ErrInvalidUpdate, u.Type)
	}
	return nil
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	encMode, err = opts.EncMode()
	if err != nil {
		panic("broadcast: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("broadcast: CBOR decoder initialization failed: " + err.Error())
	}
}

// Encode returns the deterministic CBOR encoding of u.
func Encode(u Update) ([]byte, error) {
	return encMode.Marshal(u)
}

// Decode parses a payload produced by Encode and validates it.
func Decode(payload []byte) (Update, error) {
	var u Update
	if err := decMode.Unmarshal(payload, &u); err != nil {
		return Update{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := u.Validate(); err != nil {
		return Update{}, err
	}
	return u, nil
}
