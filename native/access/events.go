package access

import (
	"strconv"

	"swapguard/core/types"
	"swapguard/crypto"
)

const (
	TypeInitialized          = "access.initialized"
	TypeOwnerTransferred     = "access.owner.transferred"
	TypeTrustedCallerUpdated = "access.trusted.updated"
	TypeBlacklistUpdated     = "access.blacklist.updated"
	TypePauseUpdated         = "access.pause.updated"
	TypeRouterUpdated        = "access.router.updated"
)

// Initialized is emitted once when the registry is seeded with its owner.
type Initialized struct {
	Owner [20]byte
}

func (Initialized) EventType() string { return TypeInitialized }

func (e Initialized) Event() *types.Event {
	return &types.Event{
		Type: TypeInitialized,
		Attributes: map[string]string{
			"owner": formatAddr(e.Owner),
		},
	}
}

// OwnerTransferred is emitted when the owner slot changes hands.
type OwnerTransferred struct {
	Previous [20]byte
	Owner    [20]byte
}

func (OwnerTransferred) EventType() string { return TypeOwnerTransferred }

func (e OwnerTransferred) Event() *types.Event {
	return &types.Event{
		Type: TypeOwnerTransferred,
		Attributes: map[string]string{
			"previous": formatAddr(e.Previous),
			"owner":    formatAddr(e.Owner),
		},
	}
}

// TrustedCallerUpdated is emitted when trusted-caller membership changes.
type TrustedCallerUpdated struct {
	Addr    [20]byte
	Trusted bool
}

func (TrustedCallerUpdated) EventType() string { return TypeTrustedCallerUpdated }

func (e TrustedCallerUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeTrustedCallerUpdated,
		Attributes: map[string]string{
			"address": formatAddr(e.Addr),
			"trusted": strconv.FormatBool(e.Trusted),
		},
	}
}

// BlacklistUpdated is emitted when blacklist membership changes.
type BlacklistUpdated struct {
	Addr        [20]byte
	Blacklisted bool
}

func (BlacklistUpdated) EventType() string { return TypeBlacklistUpdated }

func (e BlacklistUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeBlacklistUpdated,
		Attributes: map[string]string{
			"address":     formatAddr(e.Addr),
			"blacklisted": strconv.FormatBool(e.Blacklisted),
		},
	}
}

// PauseUpdated is emitted when the global pause switch is toggled.
type PauseUpdated struct {
	Paused bool
}

func (PauseUpdated) EventType() string { return TypePauseUpdated }

func (e PauseUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePauseUpdated,
		Attributes: map[string]string{
			"paused": strconv.FormatBool(e.Paused),
		},
	}
}

// RouterUpdated is emitted when the venue router address changes.
type RouterUpdated struct {
	Router [20]byte
}

func (RouterUpdated) EventType() string { return TypeRouterUpdated }

func (e RouterUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypeRouterUpdated,
		Attributes: map[string]string{
			"router": formatAddr(e.Router),
		},
	}
}

func formatAddr(addr [20]byte) string {
	return crypto.NewAddress(crypto.SWGPrefix, addr[:]).String()
}
