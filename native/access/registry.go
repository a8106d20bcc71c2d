package access

import (
	"encoding/hex"
	"errors"
	"sync"

	"swapguard/core/events"
)

var (
	// ErrNotInitialised indicates the registry has no owner yet.
	ErrNotInitialised = errors.New("access: registry not initialised")
	// ErrAlreadyInitialised indicates Initialize was invoked twice.
	ErrAlreadyInitialised = errors.New("access: registry already initialised")
	// ErrNotOwner indicates the caller does not hold the owner slot.
	ErrNotOwner = errors.New("access: caller is not the owner")
	// ErrAddressRequired indicates a zero address was supplied where a real
	// identity is required.
	ErrAddressRequired = errors.New("access: address required")
)

// Storage abstracts the subset of state manager functionality required by the
// registry.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	ownerKey        = []byte("access/owner")
	pausedKey       = []byte("access/paused")
	routerKey       = []byte("access/router")
	trustedPrefix   = []byte("access/trusted/")
	blacklistPrefix = []byte("access/blacklist/")
)

type storedAddress struct {
	Addr [20]byte
}

type storedFlag struct {
	Enabled bool
}

// Registry holds the owner slot, trusted-caller set, blacklist set, pause
// switch and router address. Every mutation is owner-gated and emits an
// update event.
type Registry struct {
	mu      sync.Mutex
	store   Storage
	emitter events.Emitter
}

// NewRegistry constructs a registry bound to the provided storage backend.
func NewRegistry(store Storage) *Registry {
	return &Registry{store: store, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

func (r *Registry) emit(evt events.Event) {
	if r == nil || r.emitter == nil || evt == nil {
		return
	}
	r.emitter.Emit(evt)
}

// Initialize seeds the owner slot and places the owner in the trusted-caller
// set. It must be called exactly once, typically at genesis.
func (r *Registry) Initialize(owner [20]byte) error {
	if owner == ([20]byte{}) {
		return ErrAddressRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ok, err := r.store.KVGet(ownerKey, nil)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialised
	}
	if err := r.store.KVPut(ownerKey, storedAddress{Addr: owner}); err != nil {
		return err
	}
	if err := r.store.KVPut(membershipKey(trustedPrefix, owner), storedFlag{Enabled: true}); err != nil {
		return err
	}
	r.emit(Initialized{Owner: owner})
	return nil
}

// Owner returns the current owner, reporting false when uninitialised.
func (r *Registry) Owner() ([20]byte, bool, error) {
	var stored storedAddress
	ok, err := r.store.KVGet(ownerKey, &stored)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return stored.Addr, true, nil
}

// RequireOwner rejects callers that do not hold the owner slot.
func (r *Registry) RequireOwner(caller [20]byte) error {
	owner, ok, err := r.Owner()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotInitialised
	}
	if owner != caller {
		return ErrNotOwner
	}
	return nil
}

// TransferOwnership moves the owner slot to a new identity.
func (r *Registry) TransferOwnership(caller, newOwner [20]byte) error {
	if newOwner == ([20]byte{}) {
		return ErrAddressRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.RequireOwner(caller); err != nil {
		return err
	}
	if err := r.store.KVPut(ownerKey, storedAddress{Addr: newOwner}); err != nil {
		return err
	}
	r.emit(OwnerTransferred{Previous: caller, Owner: newOwner})
	return nil
}

// SetTrustedCaller adds or removes an identity from the trusted-caller set.
func (r *Registry) SetTrustedCaller(caller, addr [20]byte, trusted bool) error {
	if addr == ([20]byte{}) {
		return ErrAddressRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.RequireOwner(caller); err != nil {
		return err
	}
	if err := r.store.KVPut(membershipKey(trustedPrefix, addr), storedFlag{Enabled: trusted}); err != nil {
		return err
	}
	r.emit(TrustedCallerUpdated{Addr: addr, Trusted: trusted})
	return nil
}

// SetBlacklisted adds or removes an identity (address or token, same
// namespace) from the blacklist.
func (r *Registry) SetBlacklisted(caller, addr [20]byte, blacklisted bool) error {
	if addr == ([20]byte{}) {
		return ErrAddressRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.RequireOwner(caller); err != nil {
		return err
	}
	if err := r.store.KVPut(membershipKey(blacklistPrefix, addr), storedFlag{Enabled: blacklisted}); err != nil {
		return err
	}
	r.emit(BlacklistUpdated{Addr: addr, Blacklisted: blacklisted})
	return nil
}

// SetPaused toggles the global pause switch.
func (r *Registry) SetPaused(caller [20]byte, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.RequireOwner(caller); err != nil {
		return err
	}
	if err := r.store.KVPut(pausedKey, storedFlag{Enabled: paused}); err != nil {
		return err
	}
	r.emit(PauseUpdated{Paused: paused})
	return nil
}

// SetRouter records the address of the swap-execution venue router.
func (r *Registry) SetRouter(caller, router [20]byte) error {
	if router == ([20]byte{}) {
		return ErrAddressRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.RequireOwner(caller); err != nil {
		return err
	}
	if err := r.store.KVPut(routerKey, storedAddress{Addr: router}); err != nil {
		return err
	}
	r.emit(RouterUpdated{Router: router})
	return nil
}

// Router returns the configured venue router, reporting false when unset.
func (r *Registry) Router() ([20]byte, bool, error) {
	var stored storedAddress
	ok, err := r.store.KVGet(routerKey, &stored)
	if err != nil || !ok {
		return [20]byte{}, false, err
	}
	return stored.Addr, true, nil
}

// IsTrusted reports whether addr is in the trusted-caller set.
func (r *Registry) IsTrusted(addr [20]byte) (bool, error) {
	return r.flag(membershipKey(trustedPrefix, addr))
}

// IsBlacklisted reports whether addr is blacklisted.
func (r *Registry) IsBlacklisted(addr [20]byte) (bool, error) {
	return r.flag(membershipKey(blacklistPrefix, addr))
}

// Paused reports the state of the global pause switch.
func (r *Registry) Paused() (bool, error) {
	return r.flag(pausedKey)
}

// IsPaused implements the common.PauseView interface. The pause switch is
// global, so the module argument does not select a narrower toggle.
func (r *Registry) IsPaused(string) bool {
	paused, err := r.Paused()
	if err != nil {
		return false
	}
	return paused
}

func (r *Registry) flag(key []byte) (bool, error) {
	var stored storedFlag
	ok, err := r.store.KVGet(key, &stored)
	if err != nil || !ok {
		return false, err
	}
	return stored.Enabled, nil
}

func membershipKey(prefix []byte, addr [20]byte) []byte {
	suffix := hex.EncodeToString(addr[:])
	key := make([]byte, len(prefix)+len(suffix))
	copy(key, prefix)
	copy(key[len(prefix):], suffix)
	return key
}
