package keystore

import (
	"fmt"
	"sync"

	"github.com/digitalinvoice/signer-api/internal/domain"
)

// Keystore guards the current signing key across concurrent pipeline runs.
//
// Checkout pins the current key version for one signing operation; Rotate
// swaps the current version exclusively. A signing started before a rotation
// completes against the version it checked out: the pinned KeyMaterial is
// immutable and survives the swap. Retired versions are zeroed once their
// last checkout is returned, not left to garbage-collection timing.
type Keystore struct {
	mu      sync.Mutex
	current *pin
	retired []*pin // rotated-out versions with live checkouts
}

type pin struct {
	km      *KeyMaterial
	refs    int
	retired bool
}

// NewKeystore creates a keystore holding an initial key.
func NewKeystore(km *KeyMaterial) (*Keystore, error) {
	if km == nil {
		return nil, fmt.Errorf("%w: nil key material", domain.ErrKeyLoad)
	}
	return &Keystore{current: &pin{km: km}}, nil
}

// Checkout pins the current key material for a signing operation. Every
// Checkout must be paired with exactly one Checkin.
func (s *Keystore) Checkout() *KeyMaterial {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.refs++
	return s.current.km
}

// Checkin releases a pinned key. When the released version was retired by a
// rotation and this was its last checkout, its private material is zeroed.
func (s *Keystore) Checkin(km *KeyMaterial) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.findLocked(km)
	if p == nil {
		return
	}
	p.refs--
	if p.retired && p.refs <= 0 {
		p.km.destroy()
		s.dropLocked(p)
	}
}

// Rotate swaps in new key material. In-flight signings keep the version they
// checked out; the old version is destroyed immediately when idle, otherwise
// on its last Checkin.
func (s *Keystore) Rotate(km *KeyMaterial) error {
	if km == nil {
		return fmt.Errorf("%w: nil key material", domain.ErrKeyLoad)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.current
	old.retired = true
	if old.refs <= 0 {
		old.km.destroy()
	} else {
		s.retired = append(s.retired, old)
	}
	s.current = &pin{km: km}
	return nil
}

// Version reports the current key version.
func (s *Keystore) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.km.Version()
}

// Close retires the current key and zeroes it once idle. Safe to call on
// every exit path of the owning process.
func (s *Keystore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.retired = true
	if s.current.refs <= 0 {
		s.current.km.destroy()
	}
}

func (s *Keystore) findLocked(km *KeyMaterial) *pin {
	if s.current.km == km {
		return s.current
	}
	for _, p := range s.retired {
		if p.km == km {
			return p
		}
	}
	return nil
}

func (s *Keystore) dropLocked(target *pin) {
	for i, p := range s.retired {
		if p == target {
			s.retired = append(s.retired[:i], s.retired[i+1:]...)
			return
		}
	}
}
