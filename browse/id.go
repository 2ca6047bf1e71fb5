// Package browse resolves the tree a media controller walks: typed ids and a
// closed children-of dispatch over the library repositories.
package browse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrBadSeparator = errors.New("bad separator")
	ErrNotAnInt     = errors.New("not an int")
	ErrBadPrefix    = errors.New("bad prefix")
)

type IDT string

const (
	Root     IDT = "root"
	Track    IDT = "tr"
	Album    IDT = "al"
	Artist   IDT = "ar"
	Playlist IDT = "pl"

	separator = "-"
)

type ID struct {
	Type  IDT
	Value int
}

// RootID is the entry point of the tree.
var RootID = ID{Type: Root}

func ParseID(in string) (ID, error) {
	if in == string(Root) {
		return RootID, nil
	}
	parts := strings.Split(in, separator)
	if len(parts) != 2 {
		return ID{}, ErrBadSeparator
	}
	val, err := strconv.Atoi(parts[1])
	if err != nil {
		return ID{}, fmt.Errorf("%q: %w", parts[1], ErrNotAnInt)
	}
	switch IDT(parts[0]) {
	case Track, Album, Artist, Playlist:
		return ID{Type: IDT(parts[0]), Value: val}, nil
	default:
		return ID{}, fmt.Errorf("%q: %w", parts[0], ErrBadPrefix)
	}
}

func (i ID) String() string {
	if i.Type == Root {
		return string(Root)
	}
	return fmt.Sprintf("%s%s%d", i.Type, separator, i.Value)
}

func (i ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

func (i *ID) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := ParseID(raw)
	if err != nil {
		return err
	}
	*i = id
	return nil
}
