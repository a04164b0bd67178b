package interfaces

// PasswordHasher is the opaque one-way hash service for lobby passwords
type PasswordHasher interface {
	// Hash returns an encoded hash of password
	Hash(password string) (string, error)

	// Verify reports whether password matches hash
	Verify(hash, password string) bool
}
