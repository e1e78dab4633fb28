package rcon

import (
	"fmt"
	"sort"

	"github.com/ernie/isle-tracker/internal/domain"
)

// Command names a supported RCON query
type Command string

const (
	CmdPlayerInfo Command = "playerinfo"
	CmdPlayerList Command = "playerlist"
	CmdServerInfo Command = "serverinfo"
	CmdStatus     Command = "status"
)

// Frame bytes: marker, opcode, terminator
const (
	frameMarker     byte = 0x02
	frameTerminator byte = 0x00
)

var opcodes = map[Command]byte{
	CmdPlayerInfo: 0x77,
	CmdPlayerList: 0x40,
	CmdServerInfo: 0x12,
	CmdStatus:     0x01,
}

// Frame returns the wire bytes for cmd
func Frame(cmd Command) ([]byte, error) {
	op, ok := opcodes[cmd]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, cmd)
	}
	return []byte{frameMarker, op, frameTerminator}, nil
}

// Commands lists the supported command names in sorted order
func Commands() []string {
	names := make([]string, 0, len(opcodes))
	for c := range opcodes {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return names
}
