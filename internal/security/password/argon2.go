package password

import (
	"sync"

	"github.com/alexedwards/argon2id"

	"github.com/5w1tchy/folio-api/internal/validate"
)

// Cost is the argon2id work factor for account passwords.
type Cost struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultCost applies when ARGON2_* is unset: 128 MiB over three passes.
var DefaultCost = Cost{MemoryKiB: 128 << 10, Iterations: 3, Parallelism: 1}

const (
	saltLen = 16
	keyLen  = 32
)

// CostFromEnv reads the ARGON2_* overrides. validate.Env has already
// rejected values below the floor.
func CostFromEnv() Cost {
	return Cost{
		MemoryKiB:   uint32(validate.EnvInt("ARGON2_MEMORY", int(DefaultCost.MemoryKiB))),
		Iterations:  uint32(validate.EnvInt("ARGON2_ITER", int(DefaultCost.Iterations))),
		Parallelism: uint8(validate.EnvInt("ARGON2_PAR", int(DefaultCost.Parallelism))),
	}
}

// Hasher produces and checks PHC strings at one cost.
type Hasher struct {
	params argon2id.Params
}

func NewHasher(c Cost) *Hasher {
	return &Hasher{params: argon2id.Params{
		Memory:      c.MemoryKiB,
		Iterations:  c.Iterations,
		Parallelism: c.Parallelism,
		SaltLength:  saltLen,
		KeyLength:   keyLen,
	}}
}

// Hash returns a PHC string like `$argon2id$v=19$m=131072,t=3,p=1$...`
func (h *Hasher) Hash(plain string) (string, error) {
	return argon2id.CreateHash(plain, &h.params)
}

// Check reports whether plain matches phc. upgrade is true when the stored
// hash was made at a lower cost than h and should be replaced after sign-in.
func (h *Hasher) Check(plain, phc string) (ok, upgrade bool, err error) {
	ok, err = argon2id.ComparePasswordAndHash(plain, phc)
	if err != nil || !ok {
		return false, false, err
	}
	return true, h.cheaper(phc), nil
}

func (h *Hasher) cheaper(phc string) bool {
	stored, _, _, err := argon2id.DecodeHash(phc)
	if err != nil {
		return true
	}
	p := h.params
	return stored.Memory < p.Memory || stored.Iterations < p.Iterations ||
		stored.Parallelism < p.Parallelism || stored.KeyLength < p.KeyLength
}

var (
	accountsOnce sync.Once
	accounts     *Hasher
)

// Accounts is the process hasher. It reads the env on first use, after
// main has loaded .env.
func Accounts() *Hasher {
	accountsOnce.Do(func() { accounts = NewHasher(CostFromEnv()) })
	return accounts
}

func Hash(plain string) (string, error) { return Accounts().Hash(plain) }

func Verify(plain, phc string) (ok, upgrade bool, err error) {
	return Accounts().Check(plain, phc)
}
