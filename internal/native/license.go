package native

import (
	"errors"
	"os"
)

// SecretEnv is consulted for the license secret when none was set.
const SecretEnv = "SEALPACK_LICENSE_SECRET"

// ErrLicense is returned by gates that deny an operation.
var ErrLicense = errors.New("native: license denied")

// License is the configuration a Gate decides on.
type License struct {
	Secret string
	Key    string
}

// Gate decides whether a transform may run. A non-nil error denies it.
type Gate func(License) error

// RequireLicense denies every transform until both a secret and a key
// are configured. It does not verify the key.
func RequireLicense(l License) error {
	switch {
	case l.Secret == "":
		return errors.Join(ErrLicense, errors.New("license secret not configured"))
	case l.Key == "":
		return errors.Join(ErrLicense, errors.New("license key not configured"))
	}
	return nil
}

// SetLicenseSecret sets the shared secret passed to the gate.
func (b *Boundary) SetLicenseSecret(secret string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.license.Secret = secret
}

// SetLicenseKey sets the license key passed to the gate.
func (b *Boundary) SetLicenseKey(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.license.Key = key
}

// SetGate replaces the gate. A nil gate permits every transform.
func (b *Boundary) SetGate(g Gate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = g
}

// check runs the gate with the current license. An unset secret falls
// back to the environment.
func (b *Boundary) check() error {
	b.mu.RLock()
	gate, l := b.gate, b.license
	b.mu.RUnlock()
	if gate == nil {
		return nil
	}
	if l.Secret == "" {
		l.Secret = b.getenv(SecretEnv)
	}
	if err := gate(l); err != nil {
		if !errors.Is(err, ErrLicense) {
			err = errors.Join(ErrLicense, err)
		}
		return err
	}
	return nil
}

func defaultGetenv(key string) string {
	return os.Getenv(key)
}

// Allowed runs the gate without transforming anything. It returns an
// error wrapping ErrLicense on denial.
func (b *Boundary) Allowed() error {
	return b.check()
}
